package commands

import (
	"fmt"

	"followbot/internal/components/configutil"
	"followbot/internal/components/telemetry"
	"followbot/internal/session"
)

const envPrefix = "FOLLOWBOT"

// Config is read from followbot.json5 (plus followbot.local.json5), then
// FOLLOWBOT_* environment variables, then flags. Anything still missing is
// prompted for.
type Config struct {
	session.Credentials

	Targets string `json:"targets" envconfig:"TARGETS"`
	// Delay is the base pause between targets, in seconds.
	Delay             float64 `json:"delay" envconfig:"DELAY"`
	ConfirmEach       *bool   `json:"confirm_each" envconfig:"CONFIRM_EACH"`
	WebhookUrl        string  `json:"webhook_url" envconfig:"WEBHOOK_URL"`
	RequestsPerSecond float64 `json:"requests_per_second" envconfig:"REQUESTS_PER_SECOND"`

	Telemetry telemetry.OtlpConfig `json:"telemetry" envconfig:"TELEMETRY"`
}

func loadConfig(path string) (Config, error) {
	cfg, err := configutil.ReadOptional[Config](path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err = configutil.OverlayEnv(envPrefix, cfg)
	if err != nil {
		return cfg, err
	}

	if cfg.Delay == 0 {
		cfg.Delay = 1
	}
	if cfg.Delay < 0 {
		return cfg, fmt.Errorf("delay must not be negative, got %v", cfg.Delay)
	}
	if cfg.ConfirmEach == nil {
		confirm := true
		cfg.ConfirmEach = &confirm
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 2
	}
	return cfg, nil
}
