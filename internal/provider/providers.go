// Package provider holds the outbound notification channel capabilities.
// Each sender is a narrow interface over an external provider; a nil sender
// means the channel is unconfigured and deliveries on it are skipped.
package provider

import "context"

// EmailSender delivers a message to an email address.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers a message to a phone number.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// PushResult reports the outcome for a single destination token.
type PushResult struct {
	Token string
	Err   error
}

// PushSender delivers a message to a set of device tokens. Per-token
// outcomes let the caller prune exactly the stale registrations.
type PushSender interface {
	Send(ctx context.Context, tokens []string, title, body string, data map[string]string) ([]PushResult, error)
}
