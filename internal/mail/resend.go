package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"sevirun/internal/logging"
)

// ResendSender delivers mail through the Resend HTTP API.
type ResendSender struct {
	client *resty.Client
	from   string
	logger *zap.Logger
}

type resendEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID string `json:"id"`
}

type resendError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func NewResendSender(baseURL, apiKey, from string, logger *zap.Logger) *ResendSender {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)
	return &ResendSender{client: client, from: from, logger: logging.OrNop(logger).Named("mail")}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	var (
		ok     resendResponse
		failed resendError
	)
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(resendEmail{From: s.from, To: []string{msg.To}, Subject: msg.Subject, HTML: msg.HTML}).
		SetResult(&ok).
		SetError(&failed).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("mail: send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("mail: resend returned %d: %s", resp.StatusCode(), failed.Message)
	}
	logging.FromContext(ctx, s.logger).Info("mail sent", zap.String("to", msg.To), zap.String("message_id", ok.ID))
	return nil
}
