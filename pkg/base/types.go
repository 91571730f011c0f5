package base

import (
	"strings"

	"github.com/emersion/go-imap"
)

// OutboundMessage is one message handed to the send path. The zero value of
// the optional fields means "absent".
type OutboundMessage struct {
	Subject string
	Body    string
	HTML    string
	From    string
	To      []string
	Cc      []string
	Bcc     []string
	ReplyTo string
}

// Recipients returns the full envelope recipient set: to, cc and bcc.
// Bcc addresses are delivered to but never written into visible headers.
func (m OutboundMessage) Recipients() []string {
	rcpts := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	for _, group := range [][]string{m.To, m.Cc, m.Bcc} {
		for _, addr := range group {
			if strings.TrimSpace(addr) == "" {
				continue
			}
			rcpts = append(rcpts, addr)
		}
	}
	return rcpts
}

// HasContent reports whether at least one of the plain or HTML bodies is set.
func (m OutboundMessage) HasContent() bool {
	return m.Body != "" || m.HTML != ""
}

// InboundMessage is one fetched message, normalized. Header fields hold
// decoded display strings, never raw encoded-word form. Raw is the untouched
// original payload.
type InboundMessage struct {
	Subject   string `json:"subject"`
	From      string `json:"from"`
	To        string `json:"to"`
	Date      string `json:"date"`
	PlainText string `json:"plain"`
	HTMLText  string `json:"html,omitempty"`
	Raw       []byte `json:"-"`
}

// SoftFailure records an optional operation that failed without aborting the
// enclosing fetch: clearing a seen flag, anonymous POP3 login, a skipped
// message. It is a value, not an error, so it can never propagate by
// accident.
type SoftFailure struct {
	Op  string
	Err error
}

func (f SoftFailure) String() string {
	if f.Err == nil {
		return f.Op
	}
	return f.Op + ": " + f.Err.Error()
}

// FetchResult is the outcome of one fetch session. Soft carries the
// non-fatal skips observed while producing Messages.
type FetchResult struct {
	Messages []InboundMessage
	Soft     []SoftFailure
}

// Client is the subset of go-imap client operations a fetch session needs.
// Abstracting it keeps session logic testable without a live server.
type Client interface {
	Login(username, password string) error
	Logout() error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Search(criteria *imap.SearchCriteria) (seqNums []uint32, err error)
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Store(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
}
