package friends

import (
	"context"
	"net/http"
	"strings"

	"followbot/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// the service has been seen answering with both spellings
var tokenHeaderNames = []string{"x-csrf-token", "X-CSRF-TOKEN"}

func tokenFromHeader(header http.Header) string {
	for _, name := range tokenHeaderNames {
		if token := header.Get(name); token != "" {
			return token
		}
	}
	for key, values := range header {
		if strings.EqualFold(key, session.TokenHeader) && len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return ""
}

// AcquireToken posts a follow to the probe target purely to get a CSRF challenge
// back. Only the response header matters, not whether the follow went through.
// When a token is found it becomes the session's token.
func (c *Client) AcquireToken(ctx context.Context) (string, bool) {
	ctx, span := c.tracer.Start(ctx, "client:AcquireToken")
	defer span.End()
	span.SetAttributes(attribute.Int64("probe_target", c.probeTarget))

	res, err := c.http.R().
		SetContext(ctx).
		Post(followPath(c.probeTarget))
	if err != nil {
		c.tel.ReportBroken(report_client_acquire_token, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe request failed")
		return "", false
	}

	token := tokenFromHeader(res.Header())
	if token == "" {
		c.tel.ReportWarning(report_client_acquire_token, "no token in response", res.StatusCode())
		span.SetStatus(codes.Error, "no token in response")
		return "", false
	}

	c.session.SetToken(token)
	token, _ = c.session.Token()
	c.tel.ReportDebug("acquired csrf token", res.StatusCode())
	return token, true
}
