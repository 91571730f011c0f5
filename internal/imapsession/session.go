// Package imapsession owns one IMAP fetch lifecycle: connect (TLS or
// plaintext), login, select, search for unseen messages, fetch, and an
// unconditional logout.
package imapsession

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"time"

	"bridgemail.io/mailbridge/internal/decode"
	"bridgemail.io/mailbridge/pkg/base"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

const dialTimeout = 30 * time.Second

// DialFunc opens an IMAP connection to addr, encrypted when ssl is set.
type DialFunc func(addr string, ssl bool) (base.Client, error)

// Dial is the production DialFunc backed by the go-imap client.
func Dial(addr string, ssl bool) (base.Client, error) {
	var (
		c   *client.Client
		err error
	)
	if ssl {
		c, err = client.DialTLS(addr, &tls.Config{})
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, err
	}
	c.Timeout = dialTimeout
	return c, nil
}

// Session fetches unseen messages from one folder. Construct one per call;
// the connection is never reused.
type Session struct {
	Addr     string
	SSL      bool
	Username string
	Password string

	DialFn DialFunc
	Logger *slog.Logger
}

// FetchOptions bound one fetch call.
type FetchOptions struct {
	Folder   string
	Limit    int
	MarkSeen bool
}

// FetchUnseen connects, logs in when credentials are present (a login
// failure propagates), selects the folder and returns up to Limit unseen
// messages, newest numeric id first. Fetching a message implicitly sets its
// seen flag, so when MarkSeen is false the flag is cleared back off after
// each fetch on a best-effort basis. The session is logged out on every
// exit path.
func (s *Session) FetchUnseen(ctx context.Context, opts FetchOptions) (*base.FetchResult, error) {
	if opts.Folder == "" {
		opts.Folder = "INBOX"
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dial := s.DialFn
	if dial == nil {
		dial = Dial
	}

	c, err := dial(s.Addr, s.SSL)
	if err != nil {
		return nil, base.Transport("imap connect", err)
	}
	defer func() {
		if err := c.Logout(); err != nil {
			s.Logger.Warn("imap logout failed", slog.Any("error", err))
		}
	}()

	if s.Username != "" && s.Password != "" {
		if err := c.Login(s.Username, s.Password); err != nil {
			return nil, base.Transport("imap login", err)
		}
	}

	if _, err := c.Select(opts.Folder, false); err != nil {
		return nil, base.Transport("imap select", err)
	}

	result := &base.FetchResult{}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		// A search the server refuses yields an empty result, not a
		// failed fetch.
		result.Soft = append(result.Soft, base.SoftFailure{Op: "imap search", Err: err})
		s.Logger.Warn("imap search not ok", slog.Any("error", err))
		return result, nil
	}

	// Newest numeric id first. The limit bounds how many ids are
	// attempted, not how many succeed.
	reverse(ids)
	if len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		msg, soft := s.fetchOne(c, id)
		if soft != nil {
			result.Soft = append(result.Soft, *soft)
			s.Logger.Warn("skipping message", slog.Any("id", id), slog.Any("reason", soft.Err))
			continue
		}
		result.Messages = append(result.Messages, msg)

		if !opts.MarkSeen {
			if soft := s.clearSeen(c, id); soft != nil {
				result.Soft = append(result.Soft, *soft)
			}
		}
	}

	return result, nil
}

// fetchOne retrieves and decodes a single message. Failures come back as
// soft skips so one bad message never aborts the batch.
func (s *Session) fetchOne(c base.Client, id uint32) (base.InboundMessage, *base.SoftFailure) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}

	ch := make(chan *imap.Message, 1)
	if err := c.Fetch(seqset, items, ch); err != nil {
		return base.InboundMessage{}, &base.SoftFailure{Op: "imap fetch", Err: err}
	}

	msg, ok := <-ch
	if !ok || msg == nil {
		return base.InboundMessage{}, &base.SoftFailure{Op: "imap fetch", Err: errors.New("no message returned")}
	}

	literal := msg.GetBody(section)
	if literal == nil {
		return base.InboundMessage{}, &base.SoftFailure{Op: "imap fetch", Err: errors.New("missing body section")}
	}

	raw, err := io.ReadAll(literal)
	if err != nil {
		return base.InboundMessage{}, &base.SoftFailure{Op: "imap fetch", Err: err}
	}

	inbound, err := decode.Message(raw)
	if err != nil {
		return base.InboundMessage{}, &base.SoftFailure{Op: "imap decode", Err: err}
	}
	return inbound, nil
}

// clearSeen removes the seen flag the fetch implicitly set. Best effort: a
// failure is recorded but never fatal.
func (s *Session) clearSeen(c base.Client, id uint32) *base.SoftFailure {
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)

	item := imap.FormatFlagsOp(imap.RemoveFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := c.Store(seqset, item, flags, nil); err != nil {
		s.Logger.Warn("could not clear seen flag", slog.Any("id", id), slog.Any("error", err))
		return &base.SoftFailure{Op: "imap clear seen", Err: err}
	}
	return nil
}

func reverse(ids []uint32) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}
