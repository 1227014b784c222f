package entitlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func TestEvaluate_TrialActive(t *testing.T) {
	v := Evaluate(Window{TrialEndAt: now.Add(3 * Day)}, now)

	require.True(t, v.Allowed)
	require.Equal(t, ReasonTrialActive, v.Reason)
	require.Equal(t, 3, v.TrialDaysRemaining)
}

func TestEvaluate_TrialRoundsUp(t *testing.T) {
	v := Evaluate(Window{TrialEndAt: now.Add(2*Day + time.Minute)}, now)
	assert.Equal(t, 3, v.TrialDaysRemaining)

	v = Evaluate(Window{TrialEndAt: now.Add(time.Second)}, now)
	assert.Equal(t, 1, v.TrialDaysRemaining)
}

func TestEvaluate_TrialExpired(t *testing.T) {
	v := Evaluate(Window{TrialEndAt: now.Add(-time.Hour)}, now)

	require.False(t, v.Allowed)
	require.Equal(t, ReasonTrialExpired, v.Reason)
	require.Zero(t, v.TrialDaysRemaining)
}

func TestEvaluate_TrialEndsExactlyNow(t *testing.T) {
	v := Evaluate(Window{TrialEndAt: now}, now)
	assert.Equal(t, ReasonTrialExpired, v.Reason)
}

func TestEvaluate_ActiveIgnoresTrial(t *testing.T) {
	until := now.Add(10 * Day)
	for _, trialEnd := range []time.Time{now.Add(-30 * Day), now.Add(5 * Day)} {
		v := Evaluate(Window{TrialEndAt: trialEnd, IsActivated: true, ActiveUntil: ptr(until)}, now)
		assert.True(t, v.Allowed)
		assert.Equal(t, ReasonActive, v.Reason)
		assert.Equal(t, until, *v.ActiveUntil)
	}
}

func TestEvaluate_LapsedActivationFallsBackToTrialState(t *testing.T) {
	v := Evaluate(Window{
		TrialEndAt:  now.Add(-Day),
		IsActivated: true,
		ActiveUntil: ptr(now.Add(-time.Minute)),
	}, now)
	assert.Equal(t, ReasonTrialExpired, v.Reason)
	assert.False(t, v.Allowed)
}

func TestEvaluate_ActiveUntilWithoutActivationFlag(t *testing.T) {
	v := Evaluate(Window{TrialEndAt: now.Add(-Day), ActiveUntil: ptr(now.Add(Day))}, now)
	assert.Equal(t, ReasonTrialExpired, v.Reason)
}

func TestEvaluate_BlockedWins(t *testing.T) {
	v := Evaluate(Window{
		TrialEndAt:  now.Add(5 * Day),
		IsActivated: true,
		ActiveUntil: ptr(now.Add(365 * Day)),
		Blocked:     true,
	}, now)
	require.False(t, v.Allowed)
	require.Equal(t, ReasonBlocked, v.Reason)
}

func TestReasonCodes(t *testing.T) {
	for _, r := range []Reason{ReasonActive, ReasonTrialActive, ReasonTrialExpired, ReasonBlocked} {
		assert.Equal(t, r, ReasonFromCode(r.Code()))
		assert.True(t, r.Durable())
	}
	assert.Equal(t, ReasonError, ReasonFromCode("grace"))
	assert.Equal(t, ReasonError, ReasonFromCode(""))
	assert.Empty(t, ReasonError.Code())
	assert.False(t, ReasonError.Durable())
}

func TestFailed(t *testing.T) {
	v := Failed("no route to host")
	assert.False(t, v.Allowed)
	assert.Equal(t, ReasonError, v.Reason)
	assert.Equal(t, "no route to host", v.ErrorMessage)
}

func TestEvaluate_RecordsEvaluationInstant(t *testing.T) {
	v := Evaluate(Window{TrialEndAt: now.Add(Day)}, now)
	assert.True(t, now.Equal(v.EvaluatedAt))

	assert.True(t, Failed("boom").EvaluatedAt.IsZero())
}
