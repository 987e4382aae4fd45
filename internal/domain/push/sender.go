package push

import "context"

// Sender delivers a wake-up notification to a single device token.
//
// Send returns errors.ErrInvalidToken when the provider reports the token is
// unknown or malformed; any other error is treated as transient.
type Sender interface {
	Send(ctx context.Context, token string, msg WakeUp) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, token string, msg WakeUp) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, token string, msg WakeUp) error {
	return f(ctx, token, msg)
}
