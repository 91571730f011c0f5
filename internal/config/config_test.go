package config

import (
	"os"
	"testing"
)

func clearMailEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		envSMTPHost, envSMTPPort, envSMTPUseTLS, envSMTPUser, envSMTPPassword, envSMTPFrom,
		envIMAPHost, envIMAPPort, envIMAPSSL,
		envPOP3Host, envPOP3Port, envPOP3SSL,
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearMailEnv(t)

	cfg := FromEnv()

	if cfg.SMTPPort != 587 {
		t.Errorf("SMTPPort = %d, want 587", cfg.SMTPPort)
	}
	if cfg.IMAPPort != 993 {
		t.Errorf("IMAPPort = %d, want 993", cfg.IMAPPort)
	}
	if cfg.POP3Port != 995 {
		t.Errorf("POP3Port = %d, want 995", cfg.POP3Port)
	}
	if !cfg.SMTPUseStartTLS {
		t.Error("SMTPUseStartTLS should default to true")
	}
	if !cfg.IMAPSSL || !cfg.POP3SSL {
		t.Error("IMAPSSL and POP3SSL should default to true")
	}
	if cfg.HasIMAP() || cfg.HasPOP3() || cfg.HasSMTPCredentials() {
		t.Error("nothing should be configured with an empty environment")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearMailEnv(t)
	t.Setenv(envSMTPHost, " smtp.example.com ")
	t.Setenv(envSMTPPort, "2525")
	t.Setenv(envSMTPUseTLS, "no")
	t.Setenv(envSMTPUser, "sender@example.com")
	t.Setenv(envSMTPPassword, "hunter2")
	t.Setenv(envIMAPHost, "imap.example.com")
	t.Setenv(envIMAPPort, "1143")
	t.Setenv(envPOP3Host, "pop.example.com")

	cfg := FromEnv()

	if cfg.SMTPAddr() != "smtp.example.com:2525" {
		t.Errorf("SMTPAddr() = %q", cfg.SMTPAddr())
	}
	if cfg.SMTPUseStartTLS {
		t.Error("SMTP_USE_TLS=no should disable STARTTLS")
	}
	if !cfg.HasSMTPCredentials() {
		t.Error("credentials should be detected")
	}
	if cfg.IMAPAddr() != "imap.example.com:1143" {
		t.Errorf("IMAPAddr() = %q", cfg.IMAPAddr())
	}
	if !cfg.HasIMAP() || !cfg.HasPOP3() {
		t.Error("IMAP and POP3 hosts should be detected")
	}
}

func TestFromEnvBadPortFallsBack(t *testing.T) {
	clearMailEnv(t)
	t.Setenv(envSMTPPort, "not-a-port")

	if got := FromEnv().SMTPPort; got != 587 {
		t.Errorf("SMTPPort = %d, want default 587", got)
	}
}

func TestParseBool(t *testing.T) {
	truthy := []string{"1", "true", "yes", "TRUE", "Yes", " true "}
	for _, raw := range truthy {
		if !ParseBool(raw) {
			t.Errorf("ParseBool(%q) = false, want true", raw)
		}
	}
	falsy := []string{"", "0", "no", "false", "on", "y"}
	for _, raw := range falsy {
		if ParseBool(raw) {
			t.Errorf("ParseBool(%q) = true, want false", raw)
		}
	}
}
