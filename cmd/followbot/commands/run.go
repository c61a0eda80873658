package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"followbot/internal/campaign"
	"followbot/internal/components/chrono"
	"followbot/internal/components/telemetry"
	"followbot/internal/friends"
	"followbot/internal/notifier"
	"followbot/internal/session"
	"followbot/internal/targets"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var runFlags struct {
	config      string
	targets     string
	delay       float64
	confirmEach bool
	webhook     string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Follow every target user that is not followed yet.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(runFlags.config)
		if err != nil {
			fatal("load config", err)
		}
		applyFlags(cmd, &cfg)

		err = promptMissing(&cfg)
		if err != nil {
			fatal("read input", err)
		}

		ids := targets.Parse(cfg.Targets)
		if len(ids) == 0 {
			pterm.Error.Println("no valid user ids were supplied")
			os.Exit(1)
		}

		run(cmd.Context(), cfg, ids)
	},
}

func init() {
	flags := runCmd.Flags()
	flags.StringVar(&runFlags.config, "config", "followbot.json5", "config file, a .local variant next to it overrides it")
	flags.StringVar(&runFlags.targets, "targets", "", "comma separated user ids and ranges, e.g. 1-10,42")
	flags.Float64Var(&runFlags.delay, "delay", 1, "base delay between users in seconds")
	flags.BoolVar(&runFlags.confirmEach, "confirm-each", true, "ask before every follow")
	flags.StringVar(&runFlags.webhook, "webhook", "", "discord webhook url for follow notifications")
	rootCmd.AddCommand(runCmd)
}

func applyFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	if flags.Changed("targets") {
		cfg.Targets = runFlags.targets
	}
	if flags.Changed("delay") {
		cfg.Delay = runFlags.delay
	}
	if flags.Changed("confirm-each") {
		cfg.ConfirmEach = &runFlags.confirmEach
	}
	if flags.Changed("webhook") {
		cfg.WebhookUrl = runFlags.webhook
	}
}

func fatal(message string, err error) {
	slog.Error(message, "err", err)
	os.Exit(1)
}

func run(ctx context.Context, cfg Config, ids []int64) {
	shutdown, err := telemetry.SetupTracing(ctx, "followbot", cfg.Telemetry)
	if err != nil {
		fatal("setup tracing", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}()

	runId := uuid.NewString()
	logger := slog.Default().With("run", runId)
	tel := telemetry.SlogAPI{Logger: logger}
	clock := chrono.NewStandardImpl()

	sess := session.FromCredentials(cfg.Credentials)
	client := friends.NewClient(sess, clock, tel, friends.Options{
		RequestsPerSecond: cfg.RequestsPerSecond,
		EdgeBypass:        cfg.CfClearance != "",
	})

	var notify notifier.Notifier = notifier.Nop{}
	if cfg.WebhookUrl != "" {
		async := notifier.NewAsync(notifier.NewDiscord(tel, notifier.DiscordOptions{
			WebhookUrl: cfg.WebhookUrl,
		}), tel, 0)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := async.Close(ctx)
			if err != nil {
				logger.Warn("pending notifications were dropped", "err", err)
			}
		}()
		notify = async
	}

	opts := campaign.DefaultOptions()
	opts.Delay = time.Duration(cfg.Delay * float64(time.Second))
	opts.ConfirmEach = *cfg.ConfirmEach
	opts.RunId = runId

	var confirmer campaign.Confirmer
	if opts.ConfirmEach {
		confirmer = ptermConfirmer{}
	}

	runner := campaign.NewRunner(client, client, confirmer, notify, clock, tel, opts)
	runner.OnResult = printResult

	pterm.Info.Printfln("run %s: %d targets", runId, len(ids))
	results := runner.Run(ctx, ids)
	printSummary(results, len(ids))
}

func printResult(r campaign.Result) {
	switch r.Action {
	case campaign.ActionFollowed:
		pterm.Success.Printfln("user %d: %s", r.Target, r.Outcome())
	case campaign.ActionFailed:
		pterm.Error.Printfln("user %d: %s", r.Target, r.Outcome())
	default:
		pterm.Info.Printfln("user %d: %s", r.Target, r.Outcome())
	}
}

func printSummary(results []campaign.Result, total int) {
	summary := campaign.Summarize(results)

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Outcome", "Users"})
	t.AppendRows([]table.Row{
		{"already following", summary.AlreadyFollowing},
		{"followed", summary.Followed},
		{"failed", summary.Failed},
		{"skipped", summary.Skipped},
	})
	t.AppendFooter(table.Row{"processed", fmt.Sprintf("%d / %d", len(results), total)})
	t.Render()
}
