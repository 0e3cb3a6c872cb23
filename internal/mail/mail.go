// Package mail sends registration mail through the configured SMTP relay.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gatehouse/internal/config"

	gomail "github.com/wneessen/go-mail"
)

var ErrDisabled = errors.New("smtp is not enabled")

type Sender struct {
	cfg      config.SMTPConfig
	appTitle string
	client   *gomail.Client
}

// NewSender builds a client for cfg. It returns ErrDisabled when SMTP is
// switched off.
func NewSender(cfg config.SMTPConfig, appTitle string) (*Sender, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(30 * time.Second),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	switch {
	case cfg.UseSSL:
		opts = append(opts, gomail.WithSSL())
	case cfg.UseTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	client, err := gomail.NewClient(cfg.Server, opts...)
	if err != nil {
		return nil, fmt.Errorf("create mail client: %w", err)
	}
	return &Sender{cfg: cfg, appTitle: appTitle, client: client}, nil
}

func (s *Sender) welcomeMessage(to, username string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.cfg.SenderName, s.cfg.Username); err != nil {
		return nil, fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("set to address: %w", err)
	}
	msg.Subject(fmt.Sprintf("Welcome to %s", s.appTitle))
	msg.SetBodyString(gomail.TypeTextPlain, fmt.Sprintf(
		"Hello %s,\n\nyour account on %s has been created.\n", username, s.appTitle))
	return msg, nil
}

// SendWelcome mails a registration notice to a new user.
func (s *Sender) SendWelcome(ctx context.Context, to, username string) error {
	msg, err := s.welcomeMessage(to, username)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send welcome mail: %w", err)
	}
	log.Printf("[Mail] welcome mail sent to %s", to)
	return nil
}
