// Package eml parses RFC 5322 messages into mail records.
package eml

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/custodia-labs/vellum/internal/core/domain"
	"github.com/custodia-labs/vellum/internal/core/ports/driven"
)

// Ensure Parser implements the interface.
var _ driven.MessageParser = Parser{}

// Parser adapts Parse to driven.MessageParser.
type Parser struct{}

// Parse reads a raw message.
func (Parser) Parse(data []byte) (*domain.RawMessage, error) {
	return Parse(data)
}

// keptHeaders are copied onto RawMessage.Headers for classification.
var keptHeaders = []string{
	"List-Unsubscribe",
	"List-Id",
	"Precedence",
	"Auto-Submitted",
	"Reply-To",
	"To",
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// Parse reads a raw message. The ID is the Message-Id header without
// angle brackets; callers that know a provider ID overwrite it.
func Parse(data []byte) (*domain.RawMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: reading message: %v", domain.ErrUnreadableSource, err)
	}

	body, err := extractBody(msg.Header, msg.Body)
	if err != nil {
		return nil, err
	}

	out := &domain.RawMessage{
		ID:      strings.Trim(strings.TrimSpace(msg.Header.Get("Message-Id")), "<>"),
		Sender:  decodeHeader(msg.Header.Get("From")),
		Subject: decodeHeader(msg.Header.Get("Subject")),
		Body:    strings.TrimSpace(body),
		Headers: make(map[string]string),
	}
	if date, err := msg.Header.Date(); err == nil {
		out.ReceivedAt = date
	}
	for _, h := range keptHeaders {
		if v := msg.Header.Get(h); v != "" {
			out.Headers[h] = decodeHeader(v)
		}
	}

	return out, nil
}

// decodeHeader decodes RFC 2047 encoded headers.
func decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	decoded, err := wordDecoder.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

type header interface {
	Get(key string) string
}

// extractBody returns the text of a message or part, preferring plain
// text over HTML.
func extractBody(h header, r io.Reader) (string, error) {
	contentType := h.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
		params = nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return extractMultipartBody(r, params["boundary"])
	}

	content, err := readPart(r, h.Get("Content-Transfer-Encoding"), params["charset"])
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", domain.ErrUnreadableSource, err)
	}

	if mediaType == "text/html" {
		return stripHTMLTags(content), nil
	}
	return content, nil
}

// extractMultipartBody extracts text from multipart messages.
func extractMultipartBody(r io.Reader, boundary string) (string, error) {
	if boundary == "" {
		return "", nil
	}

	mr := multipart.NewReader(r, boundary)
	var textParts []string
	var htmlParts []string

	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}

		mediaType, params, parseErr := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if parseErr != nil {
			mediaType = "text/plain"
		}
		if strings.EqualFold(part.Header.Get("Content-Disposition"), "attachment") ||
			strings.HasPrefix(strings.ToLower(part.Header.Get("Content-Disposition")), "attachment;") {
			part.Close()
			continue
		}

		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			nested, nestedErr := extractMultipartBody(part, params["boundary"])
			if nestedErr == nil && nested != "" {
				textParts = append(textParts, nested)
			}
		case mediaType == "text/plain" || mediaType == "text/html":
			content, readErr := readPart(part, part.Header.Get("Content-Transfer-Encoding"), params["charset"])
			if readErr != nil {
				break
			}
			if mediaType == "text/plain" {
				textParts = append(textParts, content)
			} else {
				htmlParts = append(htmlParts, stripHTMLTags(content))
			}
		}
		part.Close()
	}

	if len(textParts) > 0 {
		return strings.Join(textParts, "\n"), nil
	}
	return strings.Join(htmlParts, "\n"), nil
}

// readPart decodes the transfer encoding and charset of a body part.
// multipart.Reader already undoes quoted-printable on parts and drops
// the header, so only base64 reaches here for parts.
func readPart(r io.Reader, transferEncoding, charset string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, newlineStripper{r})
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}

	if charset != "" && !strings.EqualFold(charset, "utf-8") && !strings.EqualFold(charset, "us-ascii") {
		if cr, err := charsetReader(charset, r); err == nil {
			r = cr
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// newlineStripper drops CR and LF so base64 bodies wrapped at 76
// columns decode as one stream.
type newlineStripper struct {
	r io.Reader
}

func (n newlineStripper) Read(p []byte) (int, error) {
	for {
		count, err := n.r.Read(p)
		kept := 0
		for _, b := range p[:count] {
			if b != '\r' && b != '\n' {
				p[kept] = b
				kept++
			}
		}
		if kept > 0 || err != nil {
			return kept, err
		}
	}
}

// stripHTMLTags removes tags and decodes entities for basic text extraction.
func stripHTMLTags(doc string) string {
	var result strings.Builder
	inTag := false

	for _, r := range doc {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			result.WriteRune(' ')
		case !inTag:
			result.WriteRune(r)
		}
	}

	lines := strings.Split(html.UnescapeString(result.String()), "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
