package friends

import (
	"context"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const report_client_any_boolean_fallback = "client.any-boolean-fallback"

type ProbeResult struct {
	Status Status
	// Decoder is the step of the decoding chain that decided Status.
	Decoder Decoder
	// Code is the HTTP status of the final response, 0 on transport failure.
	Code int
}

// ProbeStatus asks whether the account already follows id. It never fails: a
// transport error or a response nothing can make sense of is StatusUnknown.
func (c *Client) ProbeStatus(ctx context.Context, id int64) ProbeResult {
	ctx, span := c.tracer.Start(ctx, "client:ProbeStatus")
	defer span.End()
	span.SetAttributes(attribute.Int64("target", id))

	send := func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			Get(followPath(id))
	}

	res, err := send(ctx)
	if err == nil && isRateLimited(res) {
		res, err = c.cooldownRetry(ctx, id, send)
	}
	if err != nil {
		c.tel.ReportBroken(report_client_probe_status, err, id)
		span.RecordError(err)
		span.SetStatus(codes.Error, "status request failed")
		return ProbeResult{Status: StatusUnknown}
	}

	status, decoder := decodeStatus(res.StatusCode(), res.Body())
	if decoder == DecoderStructuredAnyBoolean {
		c.tel.ReportWarning(report_client_any_boolean_fallback, id, snippet(res))
	}
	c.tel.ReportDebug("probed status", id, res.StatusCode(), status.String(), decoder.String())

	span.SetAttributes(
		attribute.String("status", status.String()),
		attribute.String("decoder", decoder.String()),
	)
	return ProbeResult{
		Status:  status,
		Decoder: decoder,
		Code:    res.StatusCode(),
	}
}
