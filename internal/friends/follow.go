package friends

import (
	"context"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type followState int

const (
	stateNoToken followState = iota
	stateHaveToken
	stateSent
	stateRateLimitedRetry
	stateUnauthorized
	stateRenewed
	stateResent
	stateDone
)

func (s followState) String() string {
	switch s {
	case stateNoToken:
		return "no-token"
	case stateHaveToken:
		return "have-token"
	case stateSent:
		return "sent"
	case stateRateLimitedRetry:
		return "rate-limited-retry"
	case stateUnauthorized:
		return "unauthorized"
	case stateRenewed:
		return "renewed"
	case stateResent:
		return "resent"
	case stateDone:
		return "done"
	}
	return "invalid"
}

// statuses meaning the token is missing, invalid or expired
var unauthorizedStatuses = map[int]bool{
	http.StatusUnauthorized: true,
	http.StatusForbidden:    true,
	419:                     true,
}

// followAttempt is the state machine for a single follow. Every state moves
// strictly forward except Sent/Resent -> RateLimitedRetry, which always ends
// in Done, so an attempt takes a bounded number of requests.
type followAttempt struct {
	client *Client
	id     int64

	state   followState
	res     *resty.Response
	success bool
	// trace is every state visited, in order
	trace []followState
}

func (a *followAttempt) send(ctx context.Context) (*resty.Response, error) {
	return a.client.http.R().
		SetContext(ctx).
		SetHeader("accept", "application/json").
		Post(followPath(a.id))
}

func (a *followAttempt) done(success bool) followState {
	a.success = success
	return stateDone
}

// sendAndThen sends the follow request and moves to next, a transport failure
// ends the attempt.
func (a *followAttempt) sendAndThen(ctx context.Context, next followState) followState {
	res, err := a.send(ctx)
	if err != nil {
		a.client.tel.ReportBroken(report_client_follow, err, a.id)
		return a.done(false)
	}
	a.res = res
	return next
}

func (a *followAttempt) step(ctx context.Context) followState {
	c := a.client

	switch a.state {
	case stateNoToken:
		c.tel.ReportDebug("no csrf token, acquiring one", a.id)
		_, ok := c.AcquireToken(ctx)
		if !ok {
			c.tel.ReportBroken(report_client_follow, "could not acquire csrf token", a.id)
			return a.done(false)
		}
		return stateHaveToken

	case stateHaveToken:
		return a.sendAndThen(ctx, stateSent)

	case stateSent:
		switch {
		case isRateLimited(a.res):
			return stateRateLimitedRetry
		case isSuccess(a.res):
			return a.done(true)
		case unauthorizedStatuses[a.res.StatusCode()]:
			return stateUnauthorized
		}
		c.tel.ReportBroken(report_client_follow, a.id, a.res.StatusCode(), snippet(a.res))
		return a.done(false)

	case stateRateLimitedRetry:
		res, err := c.cooldownRetry(ctx, a.id, a.send)
		if err != nil {
			c.tel.ReportBroken(report_client_follow, err, a.id)
			return a.done(false)
		}
		a.res = res
		if !isSuccess(res) {
			c.tel.ReportBroken(report_client_follow, a.id, res.StatusCode(), snippet(res))
		}
		return a.done(isSuccess(res))

	case stateUnauthorized:
		c.tel.ReportWarning(report_client_follow, "csrf token rejected, renewing", a.id, a.res.StatusCode())
		_, ok := c.AcquireToken(ctx)
		if !ok {
			c.tel.ReportBroken(report_client_follow, "could not renew csrf token", a.id)
			return a.done(false)
		}
		return stateRenewed

	case stateRenewed:
		return a.sendAndThen(ctx, stateResent)

	case stateResent:
		if isRateLimited(a.res) {
			return stateRateLimitedRetry
		}
		if !isSuccess(a.res) {
			c.tel.ReportBroken(report_client_follow, a.id, a.res.StatusCode(), snippet(a.res))
		}
		return a.done(isSuccess(a.res))
	}

	return a.done(false)
}

func (a *followAttempt) run(ctx context.Context) bool {
	a.state = stateHaveToken
	if _, ok := a.client.session.Token(); !ok {
		a.state = stateNoToken
	}

	for a.state != stateDone {
		a.trace = append(a.trace, a.state)
		a.state = a.step(ctx)
	}
	a.trace = append(a.trace, stateDone)
	return a.success
}

func (c *Client) newFollowAttempt(id int64) *followAttempt {
	return &followAttempt{client: c, id: id}
}

// Follow follows id, renewing the CSRF token at most once and waiting out at
// most one rate limit per send. It reports whether the service accepted it.
func (c *Client) Follow(ctx context.Context, id int64) bool {
	ctx, span := c.tracer.Start(ctx, "client:Follow")
	defer span.End()
	span.SetAttributes(attribute.Int64("target", id))

	attempt := c.newFollowAttempt(id)
	ok := attempt.run(ctx)
	if !ok {
		span.SetStatus(codes.Error, "follow failed")
	}
	return ok
}
