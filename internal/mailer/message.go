package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"time"
)

// Message is an outgoing email before it is serialised to RFC 5322.
type Message struct {
	To          []string
	ReplyTo     string
	Subject     string
	Body        string
	Attachments []Attachment

	// encrypted marks Body as an armored PGP message wrapping the original
	// body and attachments.
	encrypted bool
}

// Attachment is a file attached to a Message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (m *Mailer) formatMessage(msg Message) string {
	cfg := m.config()

	var b strings.Builder
	writeHeader(&b, "From", fromHeader(cfg))
	writeHeader(&b, "To", strings.Join(msg.To, ", "))
	if msg.ReplyTo != "" {
		writeHeader(&b, "Reply-To", msg.ReplyTo)
	}
	writeHeader(&b, "Subject", msg.Subject)
	writeHeader(&b, "Date", time.Now().Format(time.RFC1123Z))
	writeHeader(&b, "MIME-Version", "1.0")

	switch {
	case msg.encrypted:
		b.WriteString(encryptedEnvelope(msg.Body))
	case len(msg.Attachments) > 0:
		b.Write(mimeBody(msg.Body, msg.Attachments))
	default:
		writeHeader(&b, "Content-Type", "text/plain; charset=UTF-8")
		b.WriteString("\r\n")
		b.WriteString(normalizeNewlines(msg.Body))
	}
	return b.String()
}

func fromHeader(cfg Config) string {
	if cfg.FromName == "" {
		return cfg.FromAddress
	}
	return fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress)
}

// writeHeader strips line breaks from value so user input cannot add headers.
func writeHeader(b *strings.Builder, key, value string) {
	value = strings.NewReplacer("\r", "", "\n", "").Replace(value)
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

// mimeBody renders body and attachments as a multipart/mixed entity, including
// its own Content-Type header so it can be encrypted as a whole.
func mimeBody(body string, attachments []Attachment) []byte {
	var parts bytes.Buffer
	w := multipart.NewWriter(&parts)

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=UTF-8")
	textPart, _ := w.CreatePart(textHeader)
	textPart.Write([]byte(normalizeNewlines(body)))

	for _, att := range attachments {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", att.ContentType)
		h.Set("Content-Transfer-Encoding", "base64")
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
		part, _ := w.CreatePart(h)
		writeBase64Lines(part, att.Data)
	}
	w.Close()

	var out bytes.Buffer
	fmt.Fprintf(&out, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", w.Boundary())
	out.Write(parts.Bytes())
	return out.Bytes()
}

// encryptedEnvelope wraps an armored payload in a PGP/MIME (RFC 3156) entity.
func encryptedEnvelope(armored string) string {
	var parts bytes.Buffer
	w := multipart.NewWriter(&parts)

	versionHeader := textproto.MIMEHeader{}
	versionHeader.Set("Content-Type", "application/pgp-encrypted")
	versionHeader.Set("Content-Description", "PGP/MIME version identification")
	versionPart, _ := w.CreatePart(versionHeader)
	versionPart.Write([]byte("Version: 1\r\n"))

	encHeader := textproto.MIMEHeader{}
	encHeader.Set("Content-Type", `application/octet-stream; name="encrypted.asc"`)
	encHeader.Set("Content-Disposition", `inline; filename="encrypted.asc"`)
	encPart, _ := w.CreatePart(encHeader)
	encPart.Write([]byte(armored))
	w.Close()

	return fmt.Sprintf("Content-Type: multipart/encrypted; protocol=\"application/pgp-encrypted\"; boundary=%s\r\n\r\n", w.Boundary()) +
		parts.String()
}

// writeBase64Lines writes data base64-encoded in 76-character lines (RFC 2045).
func writeBase64Lines(w io.Writer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for i := 0; i < len(encoded); i += 76 {
		end := min(i+76, len(encoded))
		w.Write([]byte(encoded[i:end] + "\r\n"))
	}
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
