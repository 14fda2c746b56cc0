package notify

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"github.com/example/repairdesk/api-go/internal/blob"
)

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends through an SMTP relay.
type SMTPMailer struct {
	client *mail.Client
	from   string
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("notify: smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("notify: smtp sender address is required")
	}
	opts := []mail.Option{mail.WithTLSPolicy(mail.TLSOpportunistic)}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	em, err := buildMsg(m.from, msg, time.Now())
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, em); err != nil {
		return fmt.Errorf("notify: smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// DropMailer writes each message as an .eml file into a blob store instead
// of sending it. It is the fallback when no SMTP relay is configured.
type DropMailer struct {
	Blobs blob.LocalFS
	From  string
	Dir   string
	Now   func() time.Time
}

func (m DropMailer) Send(_ context.Context, msg Message) error {
	now := time.Now()
	if m.Now != nil {
		now = m.Now()
	}
	em, err := buildMsg(m.From, msg, now)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := em.WriteTo(&buf); err != nil {
		return fmt.Errorf("notify: encode message: %w", err)
	}
	dir := m.Dir
	if dir == "" {
		dir = "outbox"
	}
	key := fmt.Sprintf("%s/%s-%s.eml", dir, now.UTC().Format("20060102T150405"), uuid.NewString())
	if _, err := m.Blobs.Put(key, &buf); err != nil {
		return fmt.Errorf("notify: drop message: %w", err)
	}
	return nil
}

// LogMailer only logs what would have been sent.
type LogMailer struct {
	Logger *log.Logger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("mail to=%s subject=%q (%d bytes)", msg.To, msg.Subject, len(msg.PlainBody))
	return nil
}

func buildMsg(from string, msg Message, now time.Time) (*mail.Msg, error) {
	em := mail.NewMsg()
	if err := em.From(from); err != nil {
		return nil, fmt.Errorf("notify: sender %q: %w", from, err)
	}
	if err := em.To(msg.To); err != nil {
		return nil, fmt.Errorf("notify: recipient %q: %w", msg.To, err)
	}
	em.Subject(msg.Subject)
	em.SetDateWithValue(now)
	em.SetMessageIDWithValue(uuid.NewString() + "@" + senderDomain(from))
	em.SetBodyString(mail.TypeTextPlain, msg.PlainBody)
	if msg.HTMLBody != "" {
		em.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	}
	return em, nil
}

func senderDomain(from string) string {
	from = strings.TrimSuffix(strings.TrimSpace(from), ">")
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		return from[at+1:]
	}
	return "localhost"
}
