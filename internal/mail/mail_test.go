package mail

import (
	"errors"
	"testing"

	"gatehouse/internal/config"

	gomail "github.com/wneessen/go-mail"
)

func TestNewSender_Disabled(t *testing.T) {
	_, err := NewSender(config.SMTPConfig{}, "App")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestWelcomeMessage(t *testing.T) {
	s, err := NewSender(config.SMTPConfig{
		Enabled:    true,
		SenderName: "Gatehouse",
		Server:     "smtp.example.com",
		Username:   "noreply@example.com",
		Password:   "pw",
		Port:       587,
		UseTLS:     true,
	}, "Gatehouse")
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	msg, err := s.welcomeMessage("alice@example.com", "alice")
	if err != nil {
		t.Fatalf("welcomeMessage failed: %v", err)
	}
	rcpts, err := msg.GetRecipients()
	if err != nil || len(rcpts) != 1 || rcpts[0] != "alice@example.com" {
		t.Errorf("unexpected recipients %v (%v)", rcpts, err)
	}
	subject := msg.GetGenHeader(gomail.HeaderSubject)
	if len(subject) != 1 || subject[0] != "Welcome to Gatehouse" {
		t.Errorf("unexpected subject %v", subject)
	}
}

func TestWelcomeMessage_InvalidRecipient(t *testing.T) {
	s, err := NewSender(config.SMTPConfig{Enabled: true, Server: "smtp.example.com", Username: "noreply@example.com", Port: 25}, "App")
	if err != nil {
		t.Fatalf("NewSender failed: %v", err)
	}
	if _, err := s.welcomeMessage("not an address", "x"); err == nil {
		t.Errorf("expected error for invalid recipient")
	}
}
