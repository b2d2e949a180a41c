package notifier

import "context"

// Notifier delivers scan reports to an external channel.
type Notifier interface {
	Send(ctx context.Context, text string) error
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Noop discards all messages. Used when no Telegram credentials are configured.
type Noop struct{}

func (Noop) Send(context.Context, string) error { return nil }

func (Noop) SendWithRetry(context.Context, string, int) error { return nil }
