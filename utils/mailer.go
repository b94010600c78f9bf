package utils

import (
	"crypto/tls"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"mailblast/config"
	"mailblast/models"
)

// OutgoingMessage is a fully rendered email ready for transport.
type OutgoingMessage struct {
	To       string
	Subject  string
	HTMLBody string
	Headers  map[string]string
}

// Transport delivers rendered messages through a sending account. The
// dispatch engine depends on this interface so tests can swap in a fake.
type Transport interface {
	Send(acct *models.SMTPAccount, msg *OutgoingMessage) error
}

// GomailTransport sends through the account's own SMTP server using a
// per-account dialer. Passwords are stored encrypted and decrypted just
// before dialing.
type GomailTransport struct{}

func NewGomailTransport() *GomailTransport {
	return &GomailTransport{}
}

func (t *GomailTransport) Send(acct *models.SMTPAccount, msg *OutgoingMessage) error {
	password, err := Decrypt(acct.SMTPPassword)
	if err != nil {
		return fmt.Errorf("failed to decrypt SMTP password for account %d: %w", acct.ID, err)
	}

	dialer := gomail.NewDialer(acct.SMTPHost, acct.SMTPPort, acct.SMTPUsername, password)
	dialer.TLSConfig = &tls.Config{ServerName: acct.SMTPHost}

	switch strings.ToUpper(acct.Encryption) {
	case "SSL", "TLS":
		dialer.SSL = true
	case "STARTTLS":
		dialer.SSL = false
	case "NONE":
		dialer.SSL = false
		dialer.TLSConfig = nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", acct.FromName, acct.FromEmail))
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	for name, value := range msg.Headers {
		m.SetHeader(name, value)
	}
	m.SetBody("text/html", msg.HTMLBody)

	if err := dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send to %s via %s failed: %w", msg.To, acct.SMTPHost, err)
	}
	return nil
}

// DefaultAccount builds an in-memory account from the configured
// fallback SMTP server. It is never persisted and its password is held
// in plaintext, so it bypasses Decrypt via an encrypted round-trip.
func DefaultAccount() (*models.SMTPAccount, error) {
	cfg := config.AppConfig.DefaultSMTP
	if cfg.Host == "" {
		return nil, fmt.Errorf("no default SMTP server configured")
	}
	encrypted, err := Encrypt(cfg.Password)
	if err != nil {
		return nil, err
	}
	return &models.SMTPAccount{
		Name:         "default",
		FromEmail:    cfg.FromEmail,
		FromName:     cfg.FromName,
		SMTPHost:     cfg.Host,
		SMTPPort:     cfg.Port,
		SMTPUsername: cfg.Username,
		SMTPPassword: encrypted,
		Encryption:   cfg.Encryption,
		IsActive:     true,
	}, nil
}
