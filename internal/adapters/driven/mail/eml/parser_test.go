package eml

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vellum/internal/core/domain"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParse_PlainText(t *testing.T) {
	raw := crlf(`From: Billing <billing@shop.example>
To: alice@example.com
Subject: Your receipt
Date: Mon, 01 Jun 2026 10:00:00 +0000
Message-Id: <abc123@shop.example>
Content-Type: text/plain; charset=utf-8

Order total: $42.50
Thanks for shopping.
`)

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "abc123@shop.example", msg.ID)
	assert.Equal(t, "Billing <billing@shop.example>", msg.Sender)
	assert.Equal(t, "Your receipt", msg.Subject)
	assert.Contains(t, msg.Body, "Order total: $42.50")
	assert.True(t, msg.ReceivedAt.Equal(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "alice@example.com", msg.Headers["To"])
}

func TestParse_EncodedSubjectAndBulkHeaders(t *testing.T) {
	raw := crlf(`From: news@store.example
Subject: =?UTF-8?B?U3VtbWVyIHNhbGUg4oCUIDMwJSBvZmY=?=
List-Unsubscribe: <mailto:unsub@store.example>
Precedence: bulk
Content-Type: text/plain

Everything must go.
`)

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Summer sale — 30% off", msg.Subject)
	assert.Equal(t, "<mailto:unsub@store.example>", msg.Headers["List-Unsubscribe"])
	assert.Equal(t, "bulk", msg.Headers["Precedence"])
	assert.True(t, msg.ReceivedAt.IsZero())
}

func TestParse_MultipartPrefersPlainText(t *testing.T) {
	raw := crlf(`From: a@example.com
Subject: Meeting notes
Content-Type: multipart/alternative; boundary="XYZ"

--XYZ
Content-Type: text/html; charset=utf-8

<p>HTML version</p>
--XYZ
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

Plain version with a soft=
 break
--XYZ--
`)

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Plain version with a soft break", msg.Body)
}

func TestParse_HTMLOnlyBase64(t *testing.T) {
	// "<p>Invoice &amp; receipt</p>" base64-encoded
	raw := crlf(`From: a@example.com
Subject: Invoice
Content-Type: multipart/mixed; boundary="B"

--B
Content-Type: text/html; charset=utf-8
Content-Transfer-Encoding: base64

PHA+SW52b2ljZSAm
YW1wOyByZWNlaXB0PC9wPg==
--B
Content-Type: application/pdf
Content-Disposition: attachment; filename="invoice.pdf"

binary
--B--
`)

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Invoice & receipt", msg.Body)
}

func TestParse_Latin1Charset(t *testing.T) {
	raw := append(crlf("From: a@example.com\nSubject: Caf\nContent-Type: text/plain; charset=iso-8859-1\n\n"), []byte("Caf\xe9 au lait")...)

	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Café au lait", msg.Body)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("not a message at all"))
	assert.ErrorIs(t, err, domain.ErrUnreadableSource)
}

func TestStripHTMLTags(t *testing.T) {
	got := stripHTMLTags("<html><body><h1>Title</h1>\n<p>Hello&nbsp;there</p>\n\n</body></html>")
	assert.Equal(t, "Title\nHello there", got)
}
