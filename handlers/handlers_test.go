package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"bridgemail.io/mailbridge/internal/config"
	"bridgemail.io/mailbridge/pkg/base"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockService implements mailer.Service with overridable behavior.
type mockService struct {
	SendEmailFunc       func(ctx context.Context, msg base.OutboundMessage) error
	FetchUnseenIMAPFunc func(ctx context.Context, folder string, limit int, markSeen bool) (*base.FetchResult, error)
	FetchPOP3Func       func(ctx context.Context, limit int) (*base.FetchResult, error)
}

func (m *mockService) SendEmail(ctx context.Context, msg base.OutboundMessage) error {
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, msg)
	}
	return nil
}

func (m *mockService) SendEmailAsync(ctx context.Context, msg base.OutboundMessage) <-chan error {
	done := make(chan error, 1)
	done <- m.SendEmail(ctx, msg)
	return done
}

func (m *mockService) FetchUnseenIMAP(ctx context.Context, folder string, limit int, markSeen bool) (*base.FetchResult, error) {
	if m.FetchUnseenIMAPFunc != nil {
		return m.FetchUnseenIMAPFunc(ctx, folder, limit, markSeen)
	}
	return &base.FetchResult{}, nil
}

func (m *mockService) FetchPOP3(ctx context.Context, limit int) (*base.FetchResult, error) {
	if m.FetchPOP3Func != nil {
		return m.FetchPOP3Func(ctx, limit)
	}
	return &base.FetchResult{}, nil
}

func newTestApp(svc *mockService, cfg config.Mail) *fiber.App {
	engine := html.New("../views", ".html")
	app := fiber.New(fiber.Config{Views: engine})
	app.Get("/", Home)
	app.Post("/contact", Contact(svc, cfg))
	app.Get("/inbox", Inbox(svc))
	app.Get("/api/messages", Messages(svc))
	app.Get("/healthz", Health)
	app.Use(NotFound)
	return app
}

func postForm(t *testing.T, app *fiber.App, values url.Values) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func validForm() url.Values {
	return url.Values{
		"name":    {"Alice"},
		"email":   {"alice@example.com"},
		"phone":   {"555-0100"},
		"subject": {"Hello"},
		"message": {"Just checking in."},
	}
}

func TestContactSendsToConfiguredRecipient(t *testing.T) {
	var sent base.OutboundMessage
	svc := &mockService{
		SendEmailFunc: func(ctx context.Context, msg base.OutboundMessage) error {
			sent = msg
			return nil
		},
	}
	app := newTestApp(svc, config.Mail{DefaultFrom: "site@example.com"})

	resp := postForm(t, app, validForm())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"site@example.com"}, sent.To)
	assert.Equal(t, "site@example.com", sent.From)
	assert.Equal(t, "alice@example.com", sent.ReplyTo)
	assert.Equal(t, "Website contact: Hello", sent.Subject)
	assert.Contains(t, sent.Body, "Name: Alice")
	assert.Contains(t, sent.Body, "555-0100")
	assert.Contains(t, sent.Body, "Just checking in.")
}

func TestContactRecipientOverride(t *testing.T) {
	t.Setenv(config.EnvContactRecipient, "owner@example.com")

	var sent base.OutboundMessage
	svc := &mockService{
		SendEmailFunc: func(ctx context.Context, msg base.OutboundMessage) error {
			sent = msg
			return nil
		},
	}
	app := newTestApp(svc, config.Mail{DefaultFrom: "site@example.com"})

	resp := postForm(t, app, validForm())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"owner@example.com"}, sent.To)
}

func TestContactMissingFields(t *testing.T) {
	app := newTestApp(&mockService{}, config.Mail{DefaultFrom: "site@example.com"})

	for _, field := range []string{"name", "email", "subject", "message"} {
		form := validForm()
		form.Del(field)
		resp := postForm(t, app, form)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing %s", field)
	}
}

func TestContactNoRecipientConfigured(t *testing.T) {
	app := newTestApp(&mockService{}, config.Mail{})

	resp := postForm(t, app, validForm())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestContactConfigErrorIs500(t *testing.T) {
	svc := &mockService{
		SendEmailFunc: func(context.Context, base.OutboundMessage) error {
			return base.Configf("SMTP host missing")
		},
	}
	app := newTestApp(svc, config.Mail{DefaultFrom: "site@example.com"})

	resp := postForm(t, app, validForm())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestContactTransportErrorIs502(t *testing.T) {
	svc := &mockService{
		SendEmailFunc: func(context.Context, base.OutboundMessage) error {
			return base.Transport("smtp send", errors.New("550 rejected"))
		},
	}
	app := newTestApp(svc, config.Mail{DefaultFrom: "site@example.com"})

	resp := postForm(t, app, validForm())
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestMessagesDefaultsToIMAP(t *testing.T) {
	var gotFolder string
	var gotLimit int
	svc := &mockService{
		FetchUnseenIMAPFunc: func(ctx context.Context, folder string, limit int, markSeen bool) (*base.FetchResult, error) {
			gotFolder, gotLimit = folder, limit
			return &base.FetchResult{
				Messages: []base.InboundMessage{{Subject: "hi", PlainText: "body"}},
				Soft:     []base.SoftFailure{{Op: "imap clear seen"}},
			}, nil
		},
	}
	app := newTestApp(svc, config.Mail{})

	req := httptest.NewRequest(http.MethodGet, "/api/messages?limit=5", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "INBOX", gotFolder)
	assert.Equal(t, 5, gotLimit)

	var payload struct {
		Messages []base.InboundMessage `json:"messages"`
		Skipped  int                   `json:"skipped"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Messages, 1)
	assert.Equal(t, "hi", payload.Messages[0].Subject)
	assert.Equal(t, 1, payload.Skipped)
}

func TestMessagesPOP3Source(t *testing.T) {
	called := false
	svc := &mockService{
		FetchPOP3Func: func(ctx context.Context, limit int) (*base.FetchResult, error) {
			called = true
			return &base.FetchResult{}, nil
		},
	}
	app := newTestApp(svc, config.Mail{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/messages?source=pop3", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, called)
}

func TestMessagesBadSource(t *testing.T) {
	app := newTestApp(&mockService{}, config.Mail{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/messages?source=nntp", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessagesConfigErrorIs500(t *testing.T) {
	svc := &mockService{
		FetchUnseenIMAPFunc: func(context.Context, string, int, bool) (*base.FetchResult, error) {
			return nil, base.Configf("IMAP host not configured")
		},
	}
	app := newTestApp(svc, config.Mail{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/messages", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestInboxRendersHTMLOnlyPreview(t *testing.T) {
	svc := &mockService{
		FetchUnseenIMAPFunc: func(context.Context, string, int, bool) (*base.FetchResult, error) {
			return &base.FetchResult{
				Messages: []base.InboundMessage{{
					Subject:  "newsletter",
					From:     "news@example.com",
					HTMLText: "<p>rich <b>content</b></p>",
				}},
			}, nil
		},
	}
	app := newTestApp(svc, config.Mail{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/inbox", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "newsletter")
	assert.Contains(t, string(body), "rich content")
	assert.NotContains(t, string(body), "<b>content</b>")
}

func TestHealth(t *testing.T) {
	app := newTestApp(&mockService{}, config.Mail{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNotFound(t *testing.T) {
	app := newTestApp(&mockService{}, config.Mail{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
