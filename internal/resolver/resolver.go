// Package resolver is the device-side entitlement resolver. It asks the
// server for a verdict, caches successful answers and serves a bounded
// offline grace from that cache when the server cannot be reached.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/dto"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/fingerprint"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout      = 15 * time.Second
	DefaultOfflineGrace = 24 * time.Hour
	// A cached verdict fetched further in the future than this is treated
	// as a rolled-back device clock and ignored.
	maxClockSkew = 5 * time.Minute
)

type Resolver struct {
	transport Transport
	store     Store
	sink      EventSink
	now       func() time.Time
	timeout   time.Duration
	grace     time.Duration
	group     singleflight.Group
}

type Option func(*Resolver)

func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithOfflineGrace(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.grace = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func WithEventSink(sink EventSink) Option {
	return func(r *Resolver) { r.sink = sink }
}

func New(transport Transport, store Store, opts ...Option) *Resolver {
	r := &Resolver{
		transport: transport,
		store:     store,
		sink:      LogSink{Logger: slog.Default()},
		now:       time.Now,
		timeout:   DefaultTimeout,
		grace:     DefaultOfflineGrace,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type outcome struct {
	verdict   entitlement.Verdict
	cancelled bool
}

// GetVerdict resolves the verdict for fp. It never returns an error: every
// failure is folded into an ERROR verdict (or the offline grace verdict).
// Concurrent calls for the same fingerprint share one exchange. Cancelling
// ctx abandons the wait and leaves the cache untouched.
func (r *Resolver) GetVerdict(ctx context.Context, fp string) entitlement.Verdict {
	if err := fingerprint.Validate(fp); err != nil {
		return entitlement.Failed(err.Error())
	}

	ch := r.group.DoChan(fp, func() (interface{}, error) {
		return r.exchange(ctx, fp), nil
	})

	select {
	case <-ctx.Done():
		return cancelled(ctx.Err())
	case res := <-ch:
		out := res.Val.(outcome)
		if out.cancelled && ctx.Err() == nil {
			// The caller that started the shared exchange gave up; ours
			// is still live, so run it on our own context.
			out = r.exchange(ctx, fp)
		}
		return out.verdict
	}
}

func (r *Resolver) exchange(ctx context.Context, fp string) outcome {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := r.now()
	resp, err := r.transport.Status(reqCtx, fp)
	r.sink.OnExchange(Exchange{
		Fingerprint: fp,
		StartedAt:   started,
		Duration:    r.now().Sub(started),
		Response:    resp,
		Err:         err,
	})

	if err != nil {
		if ctx.Err() != nil {
			return outcome{verdict: cancelled(ctx.Err()), cancelled: true}
		}
		if errors.Is(err, ErrRejected) {
			return outcome{verdict: entitlement.Failed(err.Error())}
		}
		return outcome{verdict: r.fallback(ctx, err)}
	}

	verdict := fromResponse(resp)
	if verdict.Reason.Durable() && ctx.Err() == nil {
		cached := CachedVerdict{
			Allowed:     verdict.Allowed,
			Reason:      verdict.Reason,
			FetchedAt:   r.now(),
			TrialEndAt:  resp.TrialEndAt,
			ActiveUntil: resp.ActiveUntil,
		}
		if err := r.store.Save(ctx, cached); err != nil {
			slog.Error("failed to cache verdict", "fingerprint", fp, "error", err)
		}
	}
	return outcome{verdict: verdict}
}

// fallback serves the cached verdict if it was allowed and is younger than
// the grace window; otherwise it reports the failure.
func (r *Resolver) fallback(ctx context.Context, cause error) entitlement.Verdict {
	cached, err := r.store.Load(ctx)
	if err != nil {
		slog.Warn("verdict cache unavailable", "error", err)
		return entitlement.Failed(cause.Error())
	}
	if cached == nil || !cached.Allowed {
		return entitlement.Failed(cause.Error())
	}

	age := r.now().Sub(cached.FetchedAt)
	if age >= r.grace || age < -maxClockSkew {
		return entitlement.Failed(cause.Error())
	}

	return entitlement.Verdict{
		Allowed:     true,
		Reason:      cached.Reason,
		ActiveUntil: cached.ActiveUntil,
		Offline:     true,
	}
}

// fromResponse maps a status reply to a verdict. Unknown reason codes fail
// safe, and trial days are counted against server time.
func fromResponse(resp *dto.DeviceStatusResponse) entitlement.Verdict {
	reason := entitlement.ReasonFromCode(resp.Reason)
	if reason == entitlement.ReasonError {
		return entitlement.Failed("unrecognized reason code: " + resp.Reason)
	}

	allowed := resp.Allowed
	if reason == entitlement.ReasonBlocked || reason == entitlement.ReasonTrialExpired {
		allowed = false
	}

	return entitlement.Verdict{
		Allowed:            allowed,
		Reason:             reason,
		TrialDaysRemaining: entitlement.DaysRemaining(resp.TrialEndAt, resp.ServerTime),
		ActiveUntil:        resp.ActiveUntil,
	}
}

func cancelled(err error) entitlement.Verdict {
	return entitlement.Failed("request cancelled: " + err.Error())
}
