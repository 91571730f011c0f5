package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	envSMTPHost     = "SMTP_HOST"
	envSMTPPort     = "SMTP_PORT"
	envSMTPUseTLS   = "SMTP_USE_TLS"
	envSMTPUser     = "SMTP_USER"
	envSMTPPassword = "SMTP_PASSWORD"
	envSMTPFrom     = "SMTP_FROM"
	envIMAPHost     = "IMAP_HOST"
	envIMAPPort     = "IMAP_PORT"
	envIMAPSSL      = "IMAP_SSL"
	envPOP3Host     = "POP3_HOST"
	envPOP3Port     = "POP3_PORT"
	envPOP3SSL      = "POP3_SSL"

	// EnvContactRecipient overrides the contact form destination address.
	EnvContactRecipient = "CONTACT_RECIPIENT"
)

const (
	defaultSMTPPort = 587
	defaultIMAPPort = 993
	defaultPOP3Port = 995
)

// Mail holds the validated mail transport configuration. It is built once
// and read-only thereafter; a Mail value is safe to share across goroutines.
type Mail struct {
	SMTPHost        string
	SMTPPort        int
	SMTPUseStartTLS bool
	SMTPUser        string
	SMTPPassword    string
	DefaultFrom     string

	IMAPHost string
	IMAPPort int
	IMAPSSL  bool

	POP3Host string
	POP3Port int
	POP3SSL  bool
}

// FromEnv reads the mail configuration from environment variables,
// applying the documented defaults for ports and TLS flags.
func FromEnv() Mail {
	return Mail{
		SMTPHost:        strings.TrimSpace(os.Getenv(envSMTPHost)),
		SMTPPort:        intFromEnv(envSMTPPort, defaultSMTPPort),
		SMTPUseStartTLS: boolFromEnv(envSMTPUseTLS, true),
		SMTPUser:        strings.TrimSpace(os.Getenv(envSMTPUser)),
		SMTPPassword:    os.Getenv(envSMTPPassword),
		DefaultFrom:     strings.TrimSpace(os.Getenv(envSMTPFrom)),
		IMAPHost:        strings.TrimSpace(os.Getenv(envIMAPHost)),
		IMAPPort:        intFromEnv(envIMAPPort, defaultIMAPPort),
		IMAPSSL:         boolFromEnv(envIMAPSSL, true),
		POP3Host:        strings.TrimSpace(os.Getenv(envPOP3Host)),
		POP3Port:        intFromEnv(envPOP3Port, defaultPOP3Port),
		POP3SSL:         boolFromEnv(envPOP3SSL, true),
	}
}

// SMTPAddr returns the host:port dial address for SMTP submission.
func (m Mail) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", m.SMTPHost, m.SMTPPort)
}

// IMAPAddr returns the host:port dial address for IMAP.
func (m Mail) IMAPAddr() string {
	return fmt.Sprintf("%s:%d", m.IMAPHost, m.IMAPPort)
}

// HasIMAP reports whether an IMAP endpoint is configured. Fetch operations
// fail fast without it rather than attempting a connection.
func (m Mail) HasIMAP() bool {
	return m.IMAPHost != ""
}

// HasPOP3 reports whether a POP3 endpoint is configured.
func (m Mail) HasPOP3() bool {
	return m.POP3Host != ""
}

// HasSMTPCredentials reports whether both an SMTP user and password are set.
// The same credential pair is reused for IMAP and POP3 logins when present.
func (m Mail) HasSMTPCredentials() bool {
	return m.SMTPUser != "" && m.SMTPPassword != ""
}

// ParseBool interprets the documented truthy spellings: case-insensitive
// "1", "true" and "yes" are true, anything else is false.
func ParseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func boolFromEnv(name string, fallback bool) bool {
	raw, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	return ParseBool(raw)
}

func intFromEnv(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
