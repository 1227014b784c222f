package entitlement

import (
	"time"
)

const (
	TrialPeriod = 7 * 24 * time.Hour
	Day         = 24 * time.Hour
)

// Reason is the client-facing classification of a verdict.
type Reason string

const (
	ReasonActive       Reason = "ACTIVE"
	ReasonTrialActive  Reason = "TRIAL_ACTIVE"
	ReasonTrialExpired Reason = "TRIAL_EXPIRED"
	ReasonBlocked      Reason = "BLOCKED"
	ReasonError        Reason = "ERROR"
)

// Wire codes used by the status protocol.
const (
	CodeActive  = "active"
	CodeTrial   = "trial"
	CodeExpired = "expired"
	CodeBlocked = "blocked"
)

// Code returns the wire code for r. ERROR has no wire representation.
func (r Reason) Code() string {
	switch r {
	case ReasonActive:
		return CodeActive
	case ReasonTrialActive:
		return CodeTrial
	case ReasonTrialExpired:
		return CodeExpired
	case ReasonBlocked:
		return CodeBlocked
	default:
		return ""
	}
}

// Durable reports whether r is an authoritative classification. ERROR only
// describes the current attempt and must not replace a durable state.
func (r Reason) Durable() bool {
	switch r {
	case ReasonActive, ReasonTrialActive, ReasonTrialExpired, ReasonBlocked:
		return true
	default:
		return false
	}
}

// ReasonFromCode maps a wire code to a Reason. Unknown codes map to ERROR.
func ReasonFromCode(code string) Reason {
	switch code {
	case CodeActive:
		return ReasonActive
	case CodeTrial:
		return ReasonTrialActive
	case CodeExpired:
		return ReasonTrialExpired
	case CodeBlocked:
		return ReasonBlocked
	default:
		return ReasonError
	}
}

// Verdict is the allow/deny decision handed to the application layer.
type Verdict struct {
	Allowed            bool       `json:"allowed"`
	Reason             Reason     `json:"reason"`
	TrialDaysRemaining int        `json:"trial_days_remaining"`
	ActiveUntil        *time.Time `json:"active_until,omitempty"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	Offline            bool       `json:"offline,omitempty"`
	// EvaluatedAt is the instant Evaluate classified against. Zero for
	// verdicts that did not come from Evaluate.
	EvaluatedAt time.Time `json:"-"`
}

// Failed builds a non-allowed ERROR verdict carrying a diagnostic.
func Failed(msg string) Verdict {
	return Verdict{Allowed: false, Reason: ReasonError, ErrorMessage: msg}
}

// Window is the entitlement-relevant part of a device record.
type Window struct {
	TrialEndAt  time.Time
	IsActivated bool
	ActiveUntil *time.Time
	Blocked     bool
}

// Evaluate computes the authoritative verdict for w at now.
// Precedence: blocked, paid entitlement, trial, expired.
func Evaluate(w Window, now time.Time) Verdict {
	v := classify(w, now)
	v.EvaluatedAt = now
	return v
}

func classify(w Window, now time.Time) Verdict {
	if w.Blocked {
		return Verdict{Allowed: false, Reason: ReasonBlocked, ActiveUntil: w.ActiveUntil}
	}

	if w.IsActivated && w.ActiveUntil != nil && now.Before(*w.ActiveUntil) {
		return Verdict{Allowed: true, Reason: ReasonActive, ActiveUntil: w.ActiveUntil}
	}

	if now.Before(w.TrialEndAt) {
		return Verdict{
			Allowed:            true,
			Reason:             ReasonTrialActive,
			TrialDaysRemaining: DaysRemaining(w.TrialEndAt, now),
			ActiveUntil:        w.ActiveUntil,
		}
	}

	return Verdict{Allowed: false, Reason: ReasonTrialExpired, ActiveUntil: w.ActiveUntil}
}

// DaysRemaining is ceil((end-now)/day), never negative.
func DaysRemaining(end, now time.Time) int {
	left := end.Sub(now)
	if left <= 0 {
		return 0
	}
	days := int(left / Day)
	if left%Day != 0 {
		days++
	}
	return days
}
