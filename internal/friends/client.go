// Package friends talks to the remote friends API: probing whether the account
// follows a user, following users, and keeping the session's CSRF token fresh.
package friends

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"followbot/internal/components/assert"
	"followbot/internal/components/chrono"
	"followbot/internal/components/telemetry"
	"followbot/internal/session"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	report_client_acquire_token = "client.acquire-token"
	report_client_probe_status  = "client.probe-status"
	report_client_follow        = "client.follow"
	report_client_rate_limited  = "client.rate-limited"
)

const (
	DefaultBaseUrl     = "https://www.pekora.zip/apisite/friends/v1/users"
	DefaultReferer     = "https://www.pekora.zip/"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	DefaultProbeTarget = 86
	DefaultCooldown    = 30 * time.Second
	DefaultTimeout     = 15 * time.Second
)

type Options struct {
	// BaseUrl is the users collection, requests go to <BaseUrl>/<id>/follow.
	BaseUrl string
	Referer string
	// ProbeTarget is the user id token acquisition posts to. It only exists to
	// make the service answer with a CSRF challenge.
	ProbeTarget int64
	// Cooldown is how long to wait after a 429 before the single retry.
	Cooldown time.Duration
	// Timeout applies to each request individually.
	Timeout time.Duration
	// RequestsPerSecond paces every request made by the client, 0 disables it.
	RequestsPerSecond float64
	// EdgeBypass wraps the transport to look like a browser to the edge proxy,
	// only useful together with a cf_clearance cookie.
	EdgeBypass bool
}

func (o Options) withDefaults() Options {
	if o.BaseUrl == "" {
		o.BaseUrl = DefaultBaseUrl
	}
	if o.Referer == "" {
		o.Referer = DefaultReferer
	}
	if o.ProbeTarget == 0 {
		o.ProbeTarget = DefaultProbeTarget
	}
	if o.Cooldown == 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

type Client struct {
	http    *resty.Client
	session *session.Session
	time    chrono.API
	tel     telemetry.API
	tracer  trace.Tracer

	probeTarget int64
	cooldown    time.Duration
}

func NewClient(sess *session.Session, clock chrono.API, tel telemetry.API, opts Options) *Client {
	assert.NotNil(sess)
	assert.NotNil(clock)
	assert.NotNil(tel)

	opts = opts.withDefaults()
	tel = telemetry.NewScopedAPI("friends", tel)

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	httpClient.SetTimeout(opts.Timeout)
	httpClient.SetHeader("accept", "application/json, text/plain, */*")
	httpClient.SetHeader("user-agent", DefaultUserAgent)
	httpClient.SetHeader("referer", opts.Referer)
	if opts.EdgeBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	if opts.RequestsPerSecond > 0 {
		// max burst >= 1 just means that no requests will be dropped
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	sess.Bind(httpClient)
	telemetry.InstrumentResty(httpClient, tel)

	return &Client{
		http:        httpClient,
		session:     sess,
		time:        clock,
		tel:         tel,
		tracer:      telemetry.Tracer("followbot/friends"),
		probeTarget: opts.ProbeTarget,
		cooldown:    opts.Cooldown,
	}
}

func followPath(id int64) string {
	return fmt.Sprintf("/%d/follow", id)
}

type sendFunc func(ctx context.Context) (*resty.Response, error)

func isSuccess(res *resty.Response) bool {
	return res != nil && res.IsSuccess()
}

func isRateLimited(res *resty.Response) bool {
	return res != nil && res.StatusCode() == http.StatusTooManyRequests
}

// cooldownRetry waits out the rate limit once and sends again. Whatever the
// retry returns is final, a second 429 is not retried.
func (c *Client) cooldownRetry(ctx context.Context, id int64, send sendFunc) (*resty.Response, error) {
	c.tel.ReportWarning(report_client_rate_limited, id, c.cooldown.String())
	err := c.time.Sleep(ctx, c.cooldown)
	if err != nil {
		return nil, err
	}
	return send(ctx)
}

// snippet returns at most the first 200 bytes of a response body.
func snippet(res *resty.Response) string {
	body := res.String()
	if len(body) > 200 {
		return body[:200]
	}
	return body
}
