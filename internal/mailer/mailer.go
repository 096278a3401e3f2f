package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tunnelkit/support/internal/support"
)

const (
	defaultSubject = "Problem report"

	defaultBodyTemplate = "New problem report\n\n" +
		"Contact email:\n{{email}}\n\n" +
		"Message:\n{{message}}\n\n" +
		"Log bundle: {{handle}}\n" +
		"---\n" +
		"The attached application logs were anonymised before sending."

	bundleAttachmentName = "report.zip"
)

// Config holds the SMTP and encryption settings for outgoing reports.
type Config struct {
	Host        string
	Port        int
	User        string
	Pass        string
	FromAddress string
	FromName    string
	To          []string

	// PGPPublicKey is an armored public key. When set, report bodies and
	// attachments are sent as PGP/MIME.
	PGPPublicKey string

	Subject      string
	BodyTemplate string
}

// BundleOpener gives access to the bytes behind a log bundle handle.
type BundleOpener interface {
	Open(h support.Handle) (io.ReadCloser, error)
}

// Mailer delivers problem reports over SMTP. It implements support.Sender.
type Mailer struct {
	mu      sync.RWMutex
	cfg     *Config
	bundles BundleOpener

	// sendFn replaces SMTP delivery in tests.
	sendFn func(ctx context.Context, msg Message) error
}

// New returns a Mailer for cfg. bundles may be nil when only plain messages are sent.
func New(cfg *Config, bundles BundleOpener) *Mailer {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Mailer{cfg: cfg, bundles: bundles}
}

// Reconfigure swaps the settings used for subsequent sends.
func (m *Mailer) Reconfigure(cfg *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

func (m *Mailer) config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.cfg
}

// SendReport renders the report, attaches the log bundle and delivers it to
// the configured destination.
func (m *Mailer) SendReport(ctx context.Context, email, message string, h support.Handle) error {
	cfg := m.config()
	if len(cfg.To) == 0 && cfg.Host != "" {
		return errors.New("mailer: no destination address configured")
	}

	tmpl := cfg.BodyTemplate
	if tmpl == "" {
		tmpl = defaultBodyTemplate
	}
	subject := cfg.Subject
	if subject == "" {
		subject = defaultSubject
	}

	body := RenderTemplate(tmpl, map[string]string{
		"email":   valueOrDefault(strings.TrimSpace(email)),
		"message": message,
		"handle":  filepath.Base(string(h)),
	})

	att, err := m.bundleAttachment(h)
	if err != nil {
		return err
	}

	msg := Message{
		To:          cfg.To,
		ReplyTo:     replyTo(email),
		Subject:     subject,
		Body:        body,
		Attachments: []Attachment{att},
	}

	if cfg.PGPPublicKey != "" {
		msg, err = encryptMessage(cfg.PGPPublicKey, msg)
		if err != nil {
			return fmt.Errorf("encrypt report: %w", err)
		}
	}

	return m.send(ctx, cfg, msg)
}

// CanEncrypt returns nil when a usable PGP public key is configured.
func (m *Mailer) CanEncrypt() error {
	cfg := m.config()
	if cfg.PGPPublicKey == "" {
		return errors.New("mailer: no PGP public key configured")
	}
	if _, err := readKeyRing(cfg.PGPPublicKey); err != nil {
		return err
	}
	return nil
}

func (m *Mailer) bundleAttachment(h support.Handle) (Attachment, error) {
	if m.bundles == nil {
		return Attachment{}, errors.New("mailer: no bundle source configured")
	}
	rc, err := m.bundles.Open(h)
	if err != nil {
		return Attachment{}, fmt.Errorf("open log bundle: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return Attachment{}, fmt.Errorf("read log bundle: %w", err)
	}
	return Attachment{
		Filename:    bundleAttachmentName,
		ContentType: "application/zip",
		Data:        data,
	}, nil
}

func (m *Mailer) send(ctx context.Context, cfg Config, msg Message) error {
	if m.sendFn != nil {
		return m.sendFn(ctx, msg)
	}

	// Without SMTP settings (development) the report is only logged.
	if cfg.Host == "" {
		slog.Info("mailer: smtp not configured, report not delivered",
			"to", strings.Join(msg.To, ", "),
			"subject", msg.Subject,
			"attachments", len(msg.Attachments),
			"encrypted", msg.encrypted,
		)
		return nil
	}

	return deliver(ctx, cfg, msg.To, []byte(m.formatMessage(msg)))
}

// replyTo returns a header-safe Reply-To value, or "" when email is not an address.
func replyTo(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return ""
	}
	return addr.Address
}

// valueOrDefault returns the value or "Not provided"
func valueOrDefault(s string) string {
	if s == "" {
		return "Not provided"
	}
	return s
}
