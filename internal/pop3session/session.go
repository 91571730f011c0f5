// Package pop3session owns one POP3 fetch lifecycle: connect (TLS or
// plaintext), best-effort authentication, list, retrieve, and an
// unconditional quit.
package pop3session

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"time"

	"bridgemail.io/mailbridge/internal/decode"
	"bridgemail.io/mailbridge/pkg/base"
	"github.com/knadh/go-pop3"
)

const dialTimeout = 30 * time.Second

// Conn is the subset of pop3.Conn operations the session drives.
type Conn interface {
	Auth(user, password string) error
	List(msgID int) ([]pop3.MessageID, error)
	RetrRaw(msgID int) (*bytes.Buffer, error)
	Quit() error
}

// DialFunc opens a POP3 connection.
type DialFunc func(host string, port int, ssl bool) (Conn, error)

// Dial is the production DialFunc backed by go-pop3.
func Dial(host string, port int, ssl bool) (Conn, error) {
	p := pop3.New(pop3.Opt{
		Host:        host,
		Port:        port,
		TLSEnabled:  ssl,
		DialTimeout: dialTimeout,
	})
	return p.NewConn()
}

// Session fetches the latest messages from a POP3 mailbox. Construct one
// per call; the connection is never reused.
type Session struct {
	Host     string
	Port     int
	SSL      bool
	Username string
	Password string

	DialFn DialFunc
	Logger *slog.Logger
}

// FetchLatest connects, authenticates on a best-effort basis (listing is
// attempted regardless of a login failure), lists all message numbers,
// and retrieves up to limit messages in descending number order. A failed
// retrieval skips that message only. The session quits on every exit path.
func (s *Session) FetchLatest(ctx context.Context, limit int) (*base.FetchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dial := s.DialFn
	if dial == nil {
		dial = Dial
	}

	conn, err := dial(s.Host, s.Port, s.SSL)
	if err != nil {
		return nil, base.Transport("pop3 connect", err)
	}
	defer func() {
		if err := conn.Quit(); err != nil {
			s.Logger.Warn("pop3 quit failed", slog.Any("error", err))
		}
	}()

	result := &base.FetchResult{}

	if s.Username != "" && s.Password != "" {
		if err := conn.Auth(s.Username, s.Password); err != nil {
			result.Soft = append(result.Soft, base.SoftFailure{Op: "pop3 auth", Err: err})
			s.Logger.Warn("pop3 auth failed, continuing", slog.Any("error", err))
		}
	}

	listing, err := conn.List(0)
	if err != nil {
		return nil, base.Transport("pop3 list", err)
	}

	ids := make([]int, 0, len(listing))
	for _, item := range listing {
		ids = append(ids, item.ID)
	}
	// Newest-numbered first; the limit bounds how many ids are
	// attempted, not how many succeed.
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	if len(ids) > limit {
		ids = ids[:limit]
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		buf, err := conn.RetrRaw(id)
		if err != nil {
			result.Soft = append(result.Soft, base.SoftFailure{Op: "pop3 retr", Err: err})
			s.Logger.Warn("skipping message", slog.Int("id", id), slog.Any("error", err))
			continue
		}

		inbound, err := decode.Message(buf.Bytes())
		if err != nil {
			result.Soft = append(result.Soft, base.SoftFailure{Op: "pop3 decode", Err: err})
			s.Logger.Warn("skipping undecodable message", slog.Int("id", id), slog.Any("error", err))
			continue
		}
		result.Messages = append(result.Messages, inbound)
	}

	return result, nil
}
