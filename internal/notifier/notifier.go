// Package notifier reports follow outcomes to a webhook. Delivery is best-effort:
// failures are logged and never reach the caller.
package notifier

import (
	"context"
)

type Notification struct {
	RunId   string
	Target  int64
	Success bool
	Message string
}

// Notifier is a sink for outcomes, implementations must not block the caller on
// remote delivery for longer than their own request timeout.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}
