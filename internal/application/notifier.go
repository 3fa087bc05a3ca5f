package application

import (
	"context"
	"log/slog"
)

// Notifier delivers the spoken reply somewhere the user will see it.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type NoopNotifier struct{}

func (n *NoopNotifier) Notify(context.Context, string) error {
	return nil
}

// LogNotifier writes replies to the log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, message string) error {
	n.Logger.Info("reply", "message", message)
	return nil
}
