package service

import (
	"context"

	"kitarcycle/internal/model"
)

// Notice is a best-effort message to a recycler or an organizer.
type Notice struct {
	Recipient model.Recipient
	Type      string
	Title     string
	Message   string
	Data      map[string]interface{}
}

// Notifier delivers notices outside any transaction. Implementations absorb
// their own failures: nothing a Notifier does can fail the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NopNotifier drops every notice.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notice) {}
