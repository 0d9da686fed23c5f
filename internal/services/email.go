package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/huangang/erpsettings/internal/config"
	"github.com/huangang/erpsettings/pkg/logger"
)

const (
	MailerSMTP = "smtp"
	MailerLog  = "log"
)

// MailSettings is the in-process mail transport configuration. The email
// settings category overrides it at runtime.
type MailSettings struct {
	Mailer      string `json:"mailer"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"-"`
	Encryption  string `json:"encryption"` // tls, starttls, none
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name"`
}

func MailSettingsFromConfig(cfg config.MailConfig) MailSettings {
	return MailSettings{
		Mailer:      cfg.Mailer,
		Host:        cfg.Host,
		Port:        cfg.Port,
		Username:    cfg.Username,
		Password:    cfg.Password,
		Encryption:  cfg.Encryption,
		FromAddress: cfg.FromAddress,
		FromName:    cfg.FromName,
	}
}

// MailSettingsFromValues overlays the decoded email category values on base.
func MailSettingsFromValues(base MailSettings, values map[string]any) MailSettings {
	s := base
	if v, ok := values["mail_mailer"]; ok {
		s.Mailer = toString(v)
	}
	if v, ok := values["mail_host"]; ok {
		s.Host = toString(v)
	}
	if v, ok := values["mail_port"]; ok {
		if n, ok := toInt(v); ok {
			s.Port = int(n)
		}
	}
	if v, ok := values["mail_username"]; ok {
		s.Username = toString(v)
	}
	if v, ok := values["mail_password"]; ok {
		s.Password = toString(v)
	}
	if v, ok := values["mail_encryption"]; ok {
		s.Encryption = toString(v)
	}
	if v, ok := values["mail_from_address"]; ok {
		s.FromAddress = toString(v)
	}
	if v, ok := values["mail_from_name"]; ok {
		s.FromName = toString(v)
	}
	if s.Port == 0 {
		s.Port = 587
	}
	return s
}

type MailMessage struct {
	To      []string
	Subject string
	Body    string
}

// MailTransport delivers one message with the given settings.
type MailTransport interface {
	Send(ctx context.Context, cfg MailSettings, msg MailMessage) error
}

// Mailer sends mail through the transport selected by its current settings.
type Mailer struct {
	mu         sync.RWMutex
	settings   MailSettings
	transports map[string]MailTransport
}

func NewMailer(settings MailSettings) *Mailer {
	return &Mailer{
		settings: settings,
		transports: map[string]MailTransport{
			MailerSMTP: &SMTPTransport{Timeout: 10 * time.Second},
			MailerLog:  LogTransport{},
		},
	}
}

// Configure replaces the transport configuration in-process.
func (m *Mailer) Configure(settings MailSettings) {
	m.mu.Lock()
	m.settings = settings
	m.mu.Unlock()
	logger.Info().Str("mailer", settings.Mailer).Str("host", settings.Host).Int("port", settings.Port).
		Msg("[Mail] transport configuration applied")
}

func (m *Mailer) Settings() MailSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// SetTransport registers the transport used for mailer name.
func (m *Mailer) SetTransport(name string, t MailTransport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transports[name] = t
}

func (m *Mailer) Send(ctx context.Context, msg MailMessage) error {
	m.mu.RLock()
	cfg := m.settings
	t, ok := m.transports[cfg.Mailer]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown mailer %q", cfg.Mailer)
	}
	if len(msg.To) == 0 {
		return errors.New("no recipients")
	}
	return t.Send(ctx, cfg, msg)
}

// LogTransport writes messages to the application log instead of sending.
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, cfg MailSettings, msg MailMessage) error {
	logger.Info().Str("from", cfg.FromAddress).Strs("to", msg.To).Str("subject", msg.Subject).
		Msg("[Mail] message logged")
	return nil
}

// SMTPTransport sends through an SMTP relay. Encryption "tls" dials with
// implicit TLS, "none" stays in plain text, anything else upgrades with
// STARTTLS when the server offers it. Timeout bounds the dial and the
// whole conversation.
type SMTPTransport struct {
	Timeout time.Duration
}

func buildMessage(cfg MailSettings, msg MailMessage) string {
	from := (&mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}).String()

	headers := [][2]string{
		{"From", from},
		{"To", strings.Join(msg.To, ",")},
		{"Subject", msg.Subject},
		{"Date", time.Now().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}

	var sb strings.Builder
	for _, h := range headers {
		sb.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	sb.WriteString("\r\n")
	sb.WriteString(msg.Body)
	return sb.String()
}

func (t *SMTPTransport) Send(ctx context.Context, cfg MailSettings, msg MailMessage) error {
	if cfg.Host == "" {
		return errors.New("mail host is not configured")
	}
	if cfg.FromAddress == "" {
		return errors.New("mail from address is not configured")
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	if err := t.deliver(ctx, cfg, addr, auth, msg.To, buildMessage(cfg, msg)); err != nil {
		logger.Warn().Err(err).Str("addr", addr).Str("encryption", cfg.Encryption).Msg("[Mail] send failed")
		return err
	}

	logger.Info().Strs("to", msg.To).Msg("[Mail] message sent")
	return nil
}

func (t *SMTPTransport) dial(ctx context.Context, cfg MailSettings, addr string) (net.Conn, error) {
	netDialer := &net.Dialer{Timeout: t.Timeout}
	if cfg.Encryption == "tls" {
		dialer := &tls.Dialer{NetDialer: netDialer, Config: &tls.Config{ServerName: cfg.Host}}
		return dialer.DialContext(ctx, "tcp", addr)
	}
	return netDialer.DialContext(ctx, "tcp", addr)
}

func (t *SMTPTransport) deliver(ctx context.Context, cfg MailSettings, addr string, auth smtp.Auth, to []string, message string) error {
	conn, err := t.dial(ctx, cfg, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if t.Timeout > 0 && (!ok || time.Until(deadline) > t.Timeout) {
		deadline, ok = time.Now().Add(t.Timeout), true
	}
	if ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if cfg.Encryption != "tls" && cfg.Encryption != "none" {
		if offered, _ := client.Extension("STARTTLS"); offered {
			if err := client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
				return err
			}
		}
	}
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(cfg.FromAddress); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(message)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func testEmailBody(appName string, sentAt time.Time) string {
	var sb strings.Builder
	sb.WriteString("<html><body style=\"font-family: Arial, sans-serif;\">")
	sb.WriteString(fmt.Sprintf("<h2>%s mail settings test</h2>", appName))
	sb.WriteString("<p>This message confirms that the outgoing mail settings work.</p>")
	sb.WriteString(fmt.Sprintf("<p style=\"color: #888; font-size: 12px;\">Sent at %s</p>", sentAt.Format(time.RFC1123)))
	sb.WriteString("</body></html>")
	return sb.String()
}
