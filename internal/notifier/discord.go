package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"followbot/internal/components/assert"
	"followbot/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

const (
	report_discord_notify = "discord.notify"
	report_discord_state  = "discord.circuit"
)

const (
	colorSuccess = 0x2ECC71
	colorFailure = 0xE74C3C

	DefaultThumbnailUrl = "https://www.pekora.zip/apisite/thumbnails/v1/users/avatar-headshot?userIds=%d&size=420x4"
	footerText          = "Pekora Bot"
)

type embedThumbnail struct {
	Url string `json:"url"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Thumbnail   embedThumbnail `json:"thumbnail"`
	Footer      embedFooter    `json:"footer"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

type DiscordOptions struct {
	WebhookUrl string
	// ThumbnailUrl is a format string receiving the target id.
	ThumbnailUrl string
	Timeout      time.Duration
	// FailureThreshold is how many consecutive failed deliveries open the circuit.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before a delivery is tried again.
	OpenTimeout time.Duration
}

// Discord posts one embed per notification to a Discord webhook. Once the
// webhook keeps failing, a circuit breaker stops further deliveries for a while.
type Discord struct {
	http         *resty.Client
	cb           *gobreaker.CircuitBreaker
	tel          telemetry.API
	webhookUrl   string
	thumbnailUrl string
}

func NewDiscord(tel telemetry.API, opts DiscordOptions) *Discord {
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.WebhookUrl)

	if opts.ThumbnailUrl == "" {
		opts.ThumbnailUrl = DefaultThumbnailUrl
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 3
	}
	if opts.OpenTimeout == 0 {
		opts.OpenTimeout = time.Minute
	}

	tel = telemetry.NewScopedAPI("notifier", tel)

	httpClient := resty.New()
	httpClient.SetTimeout(opts.Timeout)
	httpClient.SetHeader("content-type", "application/json")
	telemetry.InstrumentResty(httpClient, tel)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "discord-webhook",
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			tel.ReportWarning(report_discord_state, name, from.String(), to.String())
		},
	})

	return &Discord{
		http:         httpClient,
		cb:           cb,
		tel:          tel,
		webhookUrl:   opts.WebhookUrl,
		thumbnailUrl: opts.ThumbnailUrl,
	}
}

func (d *Discord) payload(n Notification) webhookPayload {
	title := fmt.Sprintf("✅ Success - User %d", n.Target)
	color := colorSuccess
	if !n.Success {
		title = fmt.Sprintf("❌ Failed - User %d", n.Target)
		color = colorFailure
	}

	footer := footerText
	if n.RunId != "" {
		footer = fmt.Sprintf("%s · run %s", footerText, n.RunId)
	}

	return webhookPayload{
		Embeds: []embed{{
			Title:       title,
			Description: n.Message,
			Color:       color,
			Thumbnail:   embedThumbnail{Url: fmt.Sprintf(d.thumbnailUrl, n.Target)},
			Footer:      embedFooter{Text: footer},
		}},
	}
}

type webhookError struct {
	status int
	body   string
}

func (e webhookError) Error() string {
	return fmt.Sprintf("webhook responded %d: %s", e.status, e.body)
}

func (d *Discord) deliver(ctx context.Context, n Notification) error {
	_, err := d.cb.Execute(func() (any, error) {
		res, err := d.http.R().
			SetContext(ctx).
			SetBody(d.payload(n)).
			Post(d.webhookUrl)
		if err != nil {
			return nil, err
		}
		if res.StatusCode() >= 400 {
			body := res.String()
			if len(body) > 200 {
				body = body[:200]
			}
			return nil, webhookError{status: res.StatusCode(), body: body}
		}
		return nil, nil
	})
	return err
}

func (d *Discord) Notify(ctx context.Context, n Notification) {
	err := d.deliver(ctx, n)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		d.tel.ReportWarning(report_discord_notify, "webhook circuit open, dropped", n.Target)
		return
	}
	if err != nil {
		d.tel.ReportBroken(report_discord_notify, err, n.Target)
	}
}
