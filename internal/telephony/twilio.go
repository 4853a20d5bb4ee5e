package telephony

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// SMSSender sends a single text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// TwilioSMS sends reminder and scheduling texts through the Twilio REST API.
type TwilioSMS struct {
	cfg    TwilioConfig
	client messageCreator
}

var ErrSMSNotConfigured = errors.New("telephony: twilio sms not configured")

func NewTwilioSMS(cfg TwilioConfig) *TwilioSMS {
	s := &TwilioSMS{cfg: cfg}
	if cfg.AccountSID != "" && cfg.AuthToken != "" {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
		s.client = rest.Api
	}
	return s
}

func (s *TwilioSMS) SendSMS(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.client == nil || s.cfg.FromNumber == "" {
		return "", ErrSMSNotConfigured
	}
	if strings.TrimSpace(to) == "" {
		return "", errors.New("telephony: sms recipient is required")
	}
	if strings.TrimSpace(body) == "" {
		return "", errors.New("telephony: sms body is required")
	}

	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.cfg.FromNumber)
	params.SetBody(body)

	msg, err := s.client.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("telephony: twilio send: %w", err)
	}
	if msg == nil || msg.Sid == nil {
		return "", errors.New("telephony: twilio response has no message sid")
	}
	return *msg.Sid, nil
}
