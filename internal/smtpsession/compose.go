package smtpsession

import (
	"bytes"
	"io"
	"strings"
	"time"

	"bridgemail.io/mailbridge/pkg/base"
	"github.com/emersion/go-message/mail"
	"github.com/pkg/errors"
)

// Compose renders an OutboundMessage into its RFC 5322 wire form. When an
// HTML body is present the result is a multipart structure carrying the
// plain part plus an HTML alternative; otherwise it is a single text part.
// Bcc recipients are envelope-only and never written into the headers.
func Compose(msg base.OutboundMessage) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", addressList([]string{msg.From}))
	h.SetAddressList("To", addressList(msg.To))
	if len(msg.Cc) > 0 {
		h.SetAddressList("Cc", addressList(msg.Cc))
	}
	if msg.ReplyTo != "" {
		h.SetAddressList("Reply-To", addressList([]string{msg.ReplyTo}))
	}

	if msg.HTML == "" {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, errors.Wrap(err, "creating message writer")
		}
		if _, err := io.WriteString(w, msg.Body); err != nil {
			_ = w.Close()
			return nil, errors.Wrap(err, "writing plain body")
		}
		if err := w.Close(); err != nil {
			return nil, errors.Wrap(err, "closing message writer")
		}
		return buf.Bytes(), nil
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, errors.Wrap(err, "creating message writer")
	}

	iw, err := mw.CreateInline()
	if err != nil {
		_ = mw.Close()
		return nil, errors.Wrap(err, "creating alternative writer")
	}

	var plainHeader mail.InlineHeader
	plainHeader.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	pw, err := iw.CreatePart(plainHeader)
	if err != nil {
		return nil, errors.Wrap(err, "creating plain part")
	}
	if _, err := io.WriteString(pw, msg.Body); err != nil {
		_ = pw.Close()
		return nil, errors.Wrap(err, "writing plain part")
	}
	_ = pw.Close()

	var htmlHeader mail.InlineHeader
	htmlHeader.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	hw, err := iw.CreatePart(htmlHeader)
	if err != nil {
		return nil, errors.Wrap(err, "creating html part")
	}
	if _, err := io.WriteString(hw, msg.HTML); err != nil {
		_ = hw.Close()
		return nil, errors.Wrap(err, "writing html part")
	}
	_ = hw.Close()

	_ = iw.Close()
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "closing message writer")
	}
	return buf.Bytes(), nil
}

func addressList(addrs []string) []*mail.Address {
	list := make([]*mail.Address, 0, len(addrs))
	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		list = append(list, &mail.Address{Address: addr})
	}
	return list
}
