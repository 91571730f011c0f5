// Package handlers exposes the mail service over HTTP. The contact handler
// mirrors the public website form; the inbox handlers are a thin read-only
// view over the fetch operations.
package handlers

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"bridgemail.io/mailbridge/internal/config"
	"bridgemail.io/mailbridge/pkg/base"
	"bridgemail.io/mailbridge/pkg/services/mailer"
	"github.com/gofiber/fiber/v2"
	"github.com/k3a/html2text"
)

// Home renders the landing view with the contact form.
func Home(c *fiber.Ctx) error {
	return c.Render("index", fiber.Map{
		"Title": "mailbridge",
	})
}

// NotFound renders the 404 view.
func NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).Render("404", nil)
}

// Health is a liveness probe.
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Contact accepts a form-encoded contact submission and relays it to the
// configured recipient, with the submitter's address as reply-to. A missing
// recipient is a server configuration problem (500); a transport failure
// while relaying surfaces as an upstream error (502) with the cause.
func Contact(svc mailer.Service, cfg config.Mail) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := strings.TrimSpace(c.FormValue("name"))
		email := strings.TrimSpace(c.FormValue("email"))
		phone := strings.TrimSpace(c.FormValue("phone"))
		subject := strings.TrimSpace(c.FormValue("subject"))
		message := c.FormValue("message")

		if name == "" || email == "" || subject == "" || message == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "name, email, subject and message are required",
			})
		}

		recipient := resolveRecipient(cfg)
		if recipient == "" {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "contact recipient not configured",
			})
		}

		body := strings.Join([]string{
			"Name: " + name,
			"Email: " + email,
			"Phone: " + phone,
			"",
			"Message:",
			message,
		}, "\n")

		from := cfg.DefaultFrom
		if from == "" {
			from = recipient
		}

		err := svc.SendEmail(c.UserContext(), base.OutboundMessage{
			Subject: "Website contact: " + subject,
			Body:    body,
			From:    from,
			To:      []string{recipient},
			ReplyTo: email,
		})
		switch {
		case err == nil:
			return c.JSON(fiber.Map{"status": "ok", "message": "contact message sent"})
		case base.IsConfigError(err):
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "mail delivery not configured: " + err.Error(),
			})
		default:
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": fmt.Sprintf("failed to send contact email: %v", err),
			})
		}
	}
}

// Messages returns fetched messages as JSON. source selects imap (default)
// or pop3; limit bounds the batch.
func Messages(svc mailer.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit"))

		var (
			result *base.FetchResult
			err    error
		)
		switch c.Query("source", "imap") {
		case "pop3":
			result, err = svc.FetchPOP3(c.UserContext(), limit)
		case "imap":
			result, err = svc.FetchUnseenIMAP(c.UserContext(), c.Query("folder", "INBOX"), limit, false)
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "source must be imap or pop3",
			})
		}
		if err != nil {
			return respondFetchError(c, err)
		}

		return c.JSON(fiber.Map{
			"messages": result.Messages,
			"skipped":  len(result.Soft),
		})
	}
}

// Inbox renders the unseen IMAP messages as an HTML view. HTML-only
// messages get a plain-text preview derived from their HTML body.
func Inbox(svc mailer.Service) fiber.Handler {
	type entry struct {
		Subject string
		From    string
		Date    string
		Preview string
	}

	return func(c *fiber.Ctx) error {
		result, err := svc.FetchUnseenIMAP(c.UserContext(), "INBOX", 20, false)
		if err != nil {
			return respondFetchError(c, err)
		}

		entries := make([]entry, 0, len(result.Messages))
		for _, msg := range result.Messages {
			preview := msg.PlainText
			if preview == "" && msg.HTMLText != "" {
				preview = html2text.HTML2Text(msg.HTMLText)
			}
			if len(preview) > 200 {
				preview = preview[:200]
			}
			entries = append(entries, entry{
				Subject: msg.Subject,
				From:    msg.From,
				Date:    msg.Date,
				Preview: preview,
			})
		}

		return c.Render("inbox", fiber.Map{
			"Title":    "Inbox",
			"Messages": entries,
		})
	}
}

func respondFetchError(c *fiber.Ctx, err error) error {
	if base.IsConfigError(err) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "mailbox not configured: " + err.Error(),
		})
	}
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// resolveRecipient picks the contact destination: explicit override, then
// the configured default sender, then the SMTP user.
func resolveRecipient(cfg config.Mail) string {
	if override := strings.TrimSpace(os.Getenv(config.EnvContactRecipient)); override != "" {
		return override
	}
	if cfg.DefaultFrom != "" {
		return cfg.DefaultFrom
	}
	return cfg.SMTPUser
}
