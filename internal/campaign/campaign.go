// Package campaign walks a list of targets one at a time: probe, optionally
// confirm, follow, notify, pause.
package campaign

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"followbot/internal/components/assert"
	"followbot/internal/components/chrono"
	"followbot/internal/components/telemetry"
	"followbot/internal/friends"
	"followbot/internal/notifier"
)

const (
	report_runner_run     = "runner.run"
	report_runner_target  = "runner.target"
	report_runner_summary = "runner.summary"
)

// Prober reports whether the account already follows a target.
type Prober interface {
	ProbeStatus(ctx context.Context, id int64) friends.ProbeResult
}

// Follower follows a target and reports whether it was accepted.
type Follower interface {
	Follow(ctx context.Context, id int64) bool
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, question string, defaultValue bool) bool
}

type Action int

const (
	ActionNone Action = iota
	ActionSkipped
	ActionFollowed
	ActionFailed
)

func (a Action) String() string {
	switch a {
	case ActionSkipped:
		return "skipped"
	case ActionFollowed:
		return "followed"
	case ActionFailed:
		return "failed"
	default:
		return "none"
	}
}

// Result is the outcome for a single target.
type Result struct {
	Target int64
	Status friends.Status
	Action Action
}

// Outcome renders the result as "<status> -> <action>".
func (r Result) Outcome() string {
	if r.Status == friends.StatusFollowing {
		return "already following"
	}
	return fmt.Sprintf("%s -> %s", r.Status, r.Action)
}

type Options struct {
	// Delay is the base pause after every target.
	Delay time.Duration
	// JitterMin and JitterMax bound the random pause added to Delay.
	JitterMin time.Duration
	JitterMax time.Duration
	// ConfirmEach asks the Confirmer before every follow.
	ConfirmEach bool
	RunId       string
}

func DefaultOptions() Options {
	return Options{
		Delay:       time.Second,
		JitterMin:   500 * time.Millisecond,
		JitterMax:   2 * time.Second,
		ConfirmEach: true,
	}
}

type Runner struct {
	prober    Prober
	follower  Follower
	confirmer Confirmer
	notifier  notifier.Notifier
	time      chrono.API
	tel       telemetry.API
	rand      *rand.Rand
	opts      Options

	// OnResult, when set, is called after every target.
	OnResult func(Result)
}

func NewRunner(
	prober Prober,
	follower Follower,
	confirmer Confirmer,
	notify notifier.Notifier,
	clock chrono.API,
	tel telemetry.API,
	opts Options,
) *Runner {
	assert.NotNil(prober)
	assert.NotNil(follower)
	assert.NotNil(notify)
	assert.NotNil(clock)
	assert.NotNil(tel)
	if opts.ConfirmEach {
		assert.NotNil(confirmer)
	}

	return &Runner{
		prober:    prober,
		follower:  follower,
		confirmer: confirmer,
		notifier:  notify,
		time:      clock,
		tel:       telemetry.NewScopedAPI("campaign", tel),
		rand:      rand.New(rand.NewSource(clock.Now().UnixNano())),
		opts:      opts,
	}
}

// SetRand replaces the jitter source.
func (r *Runner) SetRand(rnd *rand.Rand) {
	r.rand = rnd
}

func (r *Runner) pause() time.Duration {
	jitter := r.opts.JitterMin
	if span := r.opts.JitterMax - r.opts.JitterMin; span > 0 {
		jitter += time.Duration(r.rand.Int63n(int64(span)))
	}
	return r.opts.Delay + jitter
}

func (r *Runner) shouldFollow(ctx context.Context, status friends.Status) bool {
	if !r.opts.ConfirmEach {
		return true
	}
	if status == friends.StatusUnknown {
		return r.confirmer.Confirm(ctx, "unknown status, do you want to continue the follow?", false)
	}
	return r.confirmer.Confirm(ctx, "do you want to follow this user now?", true)
}

func (r *Runner) process(ctx context.Context, id int64) Result {
	probe := r.prober.ProbeStatus(ctx, id)
	result := Result{Target: id, Status: probe.Status}

	if probe.Status == friends.StatusFollowing {
		r.tel.ReportDebug("already following, skipping", id)
		return result
	}

	if !r.shouldFollow(ctx, probe.Status) {
		result.Action = ActionSkipped
		return result
	}

	if r.follower.Follow(ctx, id) {
		result.Action = ActionFollowed
		r.notifier.Notify(ctx, notifier.Notification{
			RunId:   r.opts.RunId,
			Target:  id,
			Success: true,
			Message: "User successfully followed",
		})
		return result
	}

	result.Action = ActionFailed
	r.tel.ReportWarning(report_runner_target, id, probe.Status.String())
	r.notifier.Notify(ctx, notifier.Notification{
		RunId:   r.opts.RunId,
		Target:  id,
		Success: false,
		Message: fmt.Sprintf("Failed to follow user %d, check console for details", id),
	})
	return result
}

// Run processes targets in order, pausing after each one. It stops early only
// when ctx is done, returning the results gathered so far.
func (r *Runner) Run(ctx context.Context, targets []int64) []Result {
	results := make([]Result, 0, len(targets))

	for _, id := range targets {
		if ctx.Err() != nil {
			break
		}

		result := r.process(ctx, id)
		results = append(results, result)
		if r.OnResult != nil {
			r.OnResult(result)
		}

		err := r.time.Sleep(ctx, r.pause())
		if err != nil {
			r.tel.ReportWarning(report_runner_run, "stopped", err)
			break
		}
	}

	summary := Summarize(results)
	r.tel.ReportCount(report_runner_summary+".followed", int64(summary.Followed))
	r.tel.ReportCount(report_runner_summary+".failed", int64(summary.Failed))
	return results
}

type Summary struct {
	AlreadyFollowing int
	Followed         int
	Failed           int
	Skipped          int
}

func Summarize(results []Result) Summary {
	var s Summary
	for _, res := range results {
		switch {
		case res.Status == friends.StatusFollowing:
			s.AlreadyFollowing++
		case res.Action == ActionFollowed:
			s.Followed++
		case res.Action == ActionFailed:
			s.Failed++
		case res.Action == ActionSkipped:
			s.Skipped++
		}
	}
	return s
}
