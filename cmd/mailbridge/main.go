package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bridgemail.io/mailbridge/handlers"
	"bridgemail.io/mailbridge/internal/config"
	"bridgemail.io/mailbridge/pkg/base"
	"bridgemail.io/mailbridge/pkg/services/mailer"
	"bridgemail.io/mailbridge/pkg/utils"
	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file loaded: %s", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	app := &cli.App{
		Name:  "mailbridge",
		Usage: "send and fetch mail over SMTP, IMAP and POP3",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP frontend",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Value: ":3000", Usage: "listen address"},
				},
				Action: serve(ctx, logger),
			},
			{
				Name:  "send",
				Usage: "Send a single message",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "to", Required: true, Usage: "recipient address (repeatable)"},
					&cli.StringSliceFlag{Name: "cc", Usage: "carbon copy address (repeatable)"},
					&cli.StringSliceFlag{Name: "bcc", Usage: "blind carbon copy address (repeatable)"},
					&cli.StringFlag{Name: "from", Usage: "sender address (defaults to SMTP_FROM, then SMTP_USER)"},
					&cli.StringFlag{Name: "subject", Required: true, Usage: "message subject"},
					&cli.StringFlag{Name: "body", Usage: "plain text body"},
					&cli.StringFlag{Name: "html", Usage: "html body"},
					&cli.StringFlag{Name: "reply-to", Usage: "reply-to address"},
				},
				Action: send(ctx, logger),
			},
			{
				Name:  "fetch-imap",
				Usage: "Fetch unseen messages over IMAP and print them as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "folder", Value: "INBOX", Usage: "mailbox folder"},
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum messages to fetch"},
					&cli.BoolFlag{Name: "mark-seen", Usage: "leave fetched messages marked as seen"},
				},
				Action: fetchIMAP(ctx, logger),
			},
			{
				Name:  "fetch-pop3",
				Usage: "Fetch the latest messages over POP3 and print them as JSON",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 10, Usage: "maximum messages to fetch"},
				},
				Action: fetchPOP3(ctx, logger),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newService(logger *slog.Logger) (mailer.Service, config.Mail, error) {
	cfg := config.FromEnv()
	svc, err := mailer.NewService(
		mailer.WithConfig(cfg),
		mailer.WithLogger(logger),
	)
	return svc, cfg, err
}

func serve(ctx context.Context, logger *slog.Logger) cli.ActionFunc {
	return func(c *cli.Context) error {
		otelShutdown, err := utils.SetupOTelSDK(ctx)
		if err != nil {
			return err
		}

		logger = slog.New(otelslog.NewHandler("mailbridge"))
		svc, cfg, err := newService(logger)
		if err != nil {
			return err
		}

		engine := html.New("./views", ".html")
		app := fiber.New(fiber.Config{
			Views: engine,
		})
		app.Use(otelfiber.Middleware())

		app.Get("/", handlers.Home)
		app.Post("/contact", handlers.Contact(svc, cfg))
		app.Get("/inbox", handlers.Inbox(svc))
		app.Get("/api/messages", handlers.Messages(svc))
		app.Get("/healthz", handlers.Health)
		app.Use(handlers.NotFound)

		errCh := make(chan error, 1)
		go func() {
			errCh <- app.Listen(c.String("addr"))
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err = <-errCh:
		case <-stop:
			logger.InfoContext(ctx, "shutting down")
			err = app.Shutdown()
		}

		return errors.Join(err, otelShutdown(context.Background()))
	}
}

func send(ctx context.Context, logger *slog.Logger) cli.ActionFunc {
	return func(c *cli.Context) error {
		svc, _, err := newService(logger)
		if err != nil {
			return err
		}

		return svc.SendEmail(ctx, base.OutboundMessage{
			Subject: c.String("subject"),
			Body:    c.String("body"),
			HTML:    c.String("html"),
			From:    c.String("from"),
			To:      c.StringSlice("to"),
			Cc:      c.StringSlice("cc"),
			Bcc:     c.StringSlice("bcc"),
			ReplyTo: c.String("reply-to"),
		})
	}
}

func fetchIMAP(ctx context.Context, logger *slog.Logger) cli.ActionFunc {
	return func(c *cli.Context) error {
		svc, _, err := newService(logger)
		if err != nil {
			return err
		}

		result, err := svc.FetchUnseenIMAP(ctx, c.String("folder"), c.Int("limit"), c.Bool("mark-seen"))
		if err != nil {
			return err
		}
		return printResult(result)
	}
}

func fetchPOP3(ctx context.Context, logger *slog.Logger) cli.ActionFunc {
	return func(c *cli.Context) error {
		svc, _, err := newService(logger)
		if err != nil {
			return err
		}

		result, err := svc.FetchPOP3(ctx, c.Int("limit"))
		if err != nil {
			return err
		}
		return printResult(result)
	}
}

func printResult(result *base.FetchResult) error {
	encoded, err := json.MarshalIndent(result.Messages, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	for _, soft := range result.Soft {
		fmt.Fprintf(os.Stderr, "skipped: %s\n", soft.String())
	}
	return nil
}
