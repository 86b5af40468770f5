// Package channel implements the delivery channels a reminder is fanned out to.
//
// Every channel answers two questions for an owner: can it deliver right now
// (Available) and did a delivery go through (Send). Neither method returns an
// error or panics to the caller; failures are logged here and surface as false.
package channel

import (
	"context"
	"fmt"

	"taskpilot/internal/notify"
	logx "taskpilot/pkg/logx"
)

const (
	NameDesktop  = "desktop"
	NameTelegram = "telegram"
)

// Channel is one delivery mechanism.
type Channel interface {
	Name() string
	Available(ctx context.Context, owner string) bool
	Send(ctx context.Context, owner string, msg notify.Message) bool
}

// guard converts a panic inside a channel call into a logged false.
func guard(log logx.Logger, name string, ok *bool) {
	if r := recover(); r != nil {
		*ok = false
		log.Error("channel panicked", logx.String("channel", name), logx.String("panic", fmt.Sprint(r)))
	}
}
