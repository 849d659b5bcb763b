// Package notify delivers customer notifications by email and WhatsApp.
package notify

import (
	"context"
	"errors"
)

// ErrDisabled is returned by senders whose provider is not configured.
var ErrDisabled = errors.New("notification channel not configured")

// Message is a rendered notification ready to send.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers messages over one channel.
type Sender interface {
	// Name returns the channel the sender serves.
	Name() string

	// Send delivers msg.
	Send(ctx context.Context, msg *Message) error
}

// NoopSender is used for channels without credentials.
type NoopSender struct {
	Channel string
}

// Name implements Sender.
func (s NoopSender) Name() string { return s.Channel }

// Send always fails with ErrDisabled.
func (s NoopSender) Send(context.Context, *Message) error { return ErrDisabled }
