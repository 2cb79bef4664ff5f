// Package mail renders and delivers transactional e-mail.
package mail

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"sevirun/internal/logging"
)

var ErrNoRecipient = errors.New("mail: message has no recipient")

// Message is a single HTML e-mail.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender only logs messages. It is used when no delivery provider is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logging.OrNop(logger).Named("mail")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	logging.FromContext(ctx, s.logger).Info("mail not delivered: no provider configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// Recorder keeps sent messages in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	// Err, when set, is returned from Send after the message is recorded.
	Err error
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.Err
}

func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}
