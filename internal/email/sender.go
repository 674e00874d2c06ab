package email

import (
	"context"
	"errors"
)

// Sender define la interfaz para envio de correos de confirmación.
type Sender interface {
	SendConfirmation(ctx context.Context, toEmail, username, baseURL, token string) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendConfirmation(_ context.Context, _, _, _, _ string) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
