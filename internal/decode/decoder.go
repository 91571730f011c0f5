// Package decode normalizes raw MIME payloads: RFC 2047 encoded-word headers
// become display strings, and message bodies collapse into a best-effort
// plain-text and HTML pair.
package decode

import (
	"bytes"
	"io"
	"mime"
	"strings"

	"bridgemail.io/mailbridge/pkg/base"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
)

var headerDecoder = &mime.WordDecoder{
	CharsetReader: func(cs string, input io.Reader) (io.Reader, error) {
		r, err := charset.Reader(cs, input)
		if err != nil {
			// Unknown charset: hand the raw bytes through and let the
			// UTF-8 scrub below clean up whatever does not decode.
			return input, nil
		}
		return r, nil
	},
}

// HeaderValue decodes one or more RFC 2047 encoded-word segments into a
// single display string. Segments that fail to decode under their declared
// charset fall back to permissive UTF-8 with invalid sequences dropped.
// Plain ASCII input comes back unchanged; empty input yields "".
func HeaderValue(raw string) string {
	if raw == "" {
		return ""
	}
	decoded, err := headerDecoder.DecodeHeader(raw)
	if err != nil {
		return strings.ToValidUTF8(raw, "")
	}
	return strings.ToValidUTF8(decoded, "")
}

// ExtractBody walks every part of a possibly-multipart entity and returns
// the concatenated plain-text body plus at most one HTML body. Parts with an
// attachment disposition are skipped entirely. All text/plain bodies are
// joined with a line break and trimmed; for text/html the last part wins,
// matching the usual single-alternative structure. A non-multipart entity
// contributes its sole payload as plain text regardless of content type.
func ExtractBody(entity *message.Entity) (plain string, html string) {
	if entity == nil {
		return "", ""
	}

	if entity.MultipartReader() == nil {
		body, err := io.ReadAll(entity.Body)
		if err != nil {
			return "", ""
		}
		return strings.TrimSpace(strings.ToValidUTF8(string(body), "")), ""
	}

	var plains []string
	collectParts(entity, &plains, &html)
	return strings.TrimSpace(strings.Join(plains, "\n")), html
}

func collectParts(entity *message.Entity, plains *[]string, html *string) {
	mr := entity.MultipartReader()
	if mr == nil {
		collectLeaf(entity, plains, html)
		return
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return
		}
		if err != nil {
			// A malformed part ends the walk; whatever was collected
			// before it still counts.
			return
		}
		collectParts(part, plains, html)
	}
}

func collectLeaf(entity *message.Entity, plains *[]string, html *string) {
	disposition, _, _ := entity.Header.ContentDisposition()
	if strings.EqualFold(disposition, "attachment") {
		return
	}

	contentType, _, err := entity.Header.ContentType()
	if err != nil {
		return
	}

	switch contentType {
	case "text/plain", "text/html":
	default:
		return
	}

	body, err := io.ReadAll(entity.Body)
	if err != nil || len(body) == 0 {
		return
	}
	text := strings.ToValidUTF8(string(body), "")

	if contentType == "text/plain" {
		*plains = append(*plains, text)
	} else {
		*html = text
	}
}

// Message parses one raw RFC 5322 message and normalizes it into an
// InboundMessage. Unknown charsets are tolerated; anything else that keeps
// the message from parsing is returned as an error so the caller can skip
// the message without aborting its batch.
func Message(raw []byte) (base.InboundMessage, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return base.InboundMessage{}, err
	}

	plain, html := ExtractBody(entity)
	return base.InboundMessage{
		Subject:   HeaderValue(entity.Header.Get("Subject")),
		From:      HeaderValue(entity.Header.Get("From")),
		To:        HeaderValue(entity.Header.Get("To")),
		Date:      HeaderValue(entity.Header.Get("Date")),
		PlainText: plain,
		HTMLText:  html,
		Raw:       raw,
	}, nil
}
