package friends

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const target int64 = 5

func runAttempt(t *testing.T, h harness) *followAttempt {
	t.Helper()
	attempt := h.client.newFollowAttempt(target)
	attempt.run(context.Background())
	return attempt
}

func TestFollowWithCachedToken(t *testing.T) {
	h := newHarness(t, "cached")
	h.remote.script(http.MethodPost, target, reply{code: http.StatusOK})

	attempt := runAttempt(t, h)
	require.True(t, attempt.success)
	require.Equal(t, []followState{stateHaveToken, stateSent, stateDone}, attempt.trace)

	requests := h.remote.recorded()
	require.Len(t, requests, 1)
	require.Equal(t, "cached", requests[0].token)
	require.Equal(t, "dog", requests[0].dog)
	require.Empty(t, h.clock.Sleeps())
}

func TestFollowAcquiresMissingToken(t *testing.T) {
	h := newHarness(t, "")
	h.remote.script(http.MethodPost, DefaultProbeTarget, reply{code: http.StatusForbidden, token: "t1"})
	h.remote.script(http.MethodPost, target, reply{code: http.StatusOK})

	require.True(t, h.client.Follow(context.Background(), target))

	requests := h.remote.recorded()
	require.Len(t, requests, 2)
	require.Equal(t, "t1", requests[1].token)
}

func TestFollowAcquisitionFails(t *testing.T) {
	h := newHarness(t, "")
	h.remote.script(http.MethodPost, DefaultProbeTarget, reply{code: http.StatusOK})

	attempt := runAttempt(t, h)
	require.False(t, attempt.success)
	require.Equal(t, []followState{stateNoToken, stateDone}, attempt.trace)
	require.Equal(t, 0, h.remote.count(http.MethodPost, target))
}

func TestFollowRenewsRejectedToken(t *testing.T) {
	h := newHarness(t, "")
	h.remote.script(
		http.MethodPost, DefaultProbeTarget,
		reply{code: http.StatusForbidden, token: "t1"},
		reply{code: http.StatusForbidden, token: "t2"},
	)
	h.remote.script(
		http.MethodPost, target,
		reply{code: http.StatusForbidden},
		reply{code: http.StatusOK},
	)

	attempt := runAttempt(t, h)
	require.True(t, attempt.success)
	require.Equal(t, []followState{
		stateNoToken,
		stateHaveToken,
		stateSent,
		stateUnauthorized,
		stateRenewed,
		stateResent,
		stateDone,
	}, attempt.trace)

	requests := h.remote.recorded()
	require.Len(t, requests, 4)
	require.Equal(t, followUrlPath(DefaultProbeTarget), requests[0].path)
	require.Equal(t, "t1", requests[1].token)
	// the renewal probe carries the rejected token
	require.Equal(t, "t1", requests[2].token)
	require.Equal(t, "t2", requests[3].token)

	token, _ := h.session.Token()
	require.Equal(t, "t2", token)
}

func TestFollowRenewalStatuses(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden, 419} {
		h := newHarness(t, "stale")
		h.remote.script(http.MethodPost, DefaultProbeTarget, reply{token: "fresh"})
		h.remote.script(http.MethodPost, target, reply{code: code}, reply{code: http.StatusNoContent})

		require.True(t, h.client.Follow(context.Background(), target), "status %d", code)
		require.Equal(t, 2, h.remote.count(http.MethodPost, target))
	}
}

func TestFollowRenewalFails(t *testing.T) {
	h := newHarness(t, "stale")
	h.remote.script(http.MethodPost, target, reply{code: 419})
	h.remote.script(http.MethodPost, DefaultProbeTarget, reply{code: http.StatusInternalServerError})

	attempt := runAttempt(t, h)
	require.False(t, attempt.success)
	require.Equal(t, []followState{stateHaveToken, stateSent, stateUnauthorized, stateDone}, attempt.trace)
}

func TestFollowRenewsOnlyOnce(t *testing.T) {
	h := newHarness(t, "stale")
	h.remote.script(http.MethodPost, DefaultProbeTarget, reply{token: "fresh"})
	h.remote.script(
		http.MethodPost, target,
		reply{code: http.StatusForbidden},
		reply{code: http.StatusForbidden},
	)

	require.False(t, h.client.Follow(context.Background(), target))
	require.Len(t, h.remote.recorded(), 3)
}

func TestFollowRateLimitedTwice(t *testing.T) {
	h := newHarness(t, "tok")
	h.remote.script(
		http.MethodPost, target,
		reply{code: http.StatusTooManyRequests},
		reply{code: http.StatusTooManyRequests},
	)

	attempt := runAttempt(t, h)
	require.False(t, attempt.success)
	require.Equal(t, []followState{stateHaveToken, stateSent, stateRateLimitedRetry, stateDone}, attempt.trace)
	require.Equal(t, []time.Duration{DefaultCooldown}, h.clock.Sleeps())
	require.Len(t, h.remote.recorded(), 2)
}

func TestFollowRateLimitedThenAccepted(t *testing.T) {
	h := newHarness(t, "tok")
	h.remote.script(
		http.MethodPost, target,
		reply{code: http.StatusTooManyRequests},
		reply{code: http.StatusOK},
	)

	require.True(t, h.client.Follow(context.Background(), target))
	require.Equal(t, []time.Duration{DefaultCooldown}, h.clock.Sleeps())

	requests := h.remote.recorded()
	require.Equal(t, "tok", requests[0].token)
	require.Equal(t, "tok", requests[1].token)
}

func TestFollowRateLimitedRetryOutcomeIsFinal(t *testing.T) {
	h := newHarness(t, "tok")
	h.remote.script(
		http.MethodPost, target,
		reply{code: http.StatusTooManyRequests},
		reply{code: http.StatusForbidden},
	)

	require.False(t, h.client.Follow(context.Background(), target))
	require.Equal(t, 0, h.remote.count(http.MethodPost, DefaultProbeTarget))
}

func TestFollowRenewalThenRateLimited(t *testing.T) {
	h := newHarness(t, "stale")
	h.remote.script(http.MethodPost, DefaultProbeTarget, reply{token: "fresh"})
	h.remote.script(
		http.MethodPost, target,
		reply{code: http.StatusUnauthorized},
		reply{code: http.StatusTooManyRequests},
		reply{code: http.StatusCreated},
	)

	attempt := runAttempt(t, h)
	require.True(t, attempt.success)
	require.Equal(t, []followState{
		stateHaveToken,
		stateSent,
		stateUnauthorized,
		stateRenewed,
		stateResent,
		stateRateLimitedRetry,
		stateDone,
	}, attempt.trace)
	require.Len(t, h.remote.recorded(), 4)
	require.Equal(t, []time.Duration{DefaultCooldown}, h.clock.Sleeps())
}

func TestFollowRejected(t *testing.T) {
	h := newHarness(t, "tok")
	h.remote.script(http.MethodPost, target, reply{code: http.StatusBadRequest, body: `{"errors":[{"code":1}]}`})

	require.False(t, h.client.Follow(context.Background(), target))
	require.Len(t, h.remote.recorded(), 1)
	require.NotEmpty(t, h.tel.Reports("broken", report_client_follow))
}

func TestFollowTransportFailure(t *testing.T) {
	h := newHarness(t, "tok")
	h.remote.server.Close()

	attempt := runAttempt(t, h)
	require.False(t, attempt.success)
	require.Equal(t, []followState{stateHaveToken, stateDone}, attempt.trace)
}

func TestFollowReusesAcquiredToken(t *testing.T) {
	h := newHarness(t, "")
	h.remote.script(http.MethodPost, DefaultProbeTarget, reply{token: "shared"})
	h.remote.script(http.MethodPost, 6, reply{})
	h.remote.script(http.MethodPost, 7, reply{})

	ctx := context.Background()
	require.True(t, h.client.Follow(ctx, 6))
	require.True(t, h.client.Follow(ctx, 7))

	require.Equal(t, 1, h.remote.count(http.MethodPost, DefaultProbeTarget))
	for _, r := range h.remote.recorded()[1:] {
		require.Equal(t, "shared", r.token)
	}
}

func TestFollowCancelledDuringCooldown(t *testing.T) {
	h := newHarness(t, "tok")
	h.remote.script(http.MethodPost, target, reply{code: http.StatusTooManyRequests})

	ctx, cancel := context.WithCancel(context.Background())
	attempt := h.client.newFollowAttempt(target)
	attempt.state = stateHaveToken
	attempt.state = attempt.step(ctx)
	require.Equal(t, stateSent, attempt.state)
	attempt.state = attempt.step(ctx)
	require.Equal(t, stateRateLimitedRetry, attempt.state)

	cancel()
	attempt.state = attempt.step(ctx)
	require.Equal(t, stateDone, attempt.state)
	require.False(t, attempt.success)
	require.Len(t, h.remote.recorded(), 1)
}
