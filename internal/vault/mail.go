// internal/vault/mail.go
package vault

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	awsclient "notification-pipeline/internal/common/aws"
	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

const (
	ProviderSMTP = "smtp"
	ProviderSES  = "ses"
)

// MailMessage is one outbound HTML email.
type MailMessage struct {
	To      string
	Subject string
	HTML    string
}

// Mailer is a tenant bound mail transport.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
	From() string
	Provider() string
}

// MailerFactory builds a Mailer from a decrypted EMAIL credential.
type MailerFactory func(ctx context.Context, values map[string]interface{}, opts Options) (Mailer, error)

// MailConfig is the decrypted EMAIL credential.
type MailConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Secure bool   `mapstructure:"secure"`
	Auth   struct {
		User string `mapstructure:"user"`
		Pass string `mapstructure:"pass"`
	} `mapstructure:"auth"`
	FromName  string `mapstructure:"fromName"`
	FromEmail string `mapstructure:"fromEmail"`

	awsclient.StaticCredentials `mapstructure:",squash"`
}

// FromAddress renders the sender header value.
func (c MailConfig) FromAddress() string {
	email := c.FromEmail
	if email == "" {
		email = c.Auth.User
	}
	if c.FromName != "" {
		return (&mail.Address{Name: c.FromName, Address: email}).String()
	}
	return email
}

// Mailer returns the tenant's cached mail transport, building it on a miss or after TTL.
func (v *Vault) Mailer(ctx context.Context, tenantID string) (Mailer, error) {
	v.mu.Lock()
	e, ok := v.mailers[tenantID]
	v.mu.Unlock()
	if ok && v.now().Sub(e.cachedAt) < v.opts.MailClientTTL {
		return e.mailer, nil
	}

	key := cacheKey(models.ChannelEmail, tenantID)
	m, err, _ := v.group.Do(key, func() (interface{}, error) {
		gen := v.generation(key)
		cfg, err := v.Resolve(ctx, tenantID, models.ChannelEmail)
		if err != nil {
			return nil, err
		}

		provider := strings.ToLower(cfg.Provider)
		if provider == "" {
			provider = ProviderSMTP
		}
		factory, ok := v.mailFactories[provider]
		if !ok {
			return nil, apperrors.NewUnknownProviderError(string(models.ChannelEmail), cfg.Provider)
		}

		mailer, err := factory(ctx, cfg.Values, v.opts)
		if err != nil {
			return nil, err
		}

		v.mu.Lock()
		if v.gens[key] == gen {
			v.mailers[tenantID] = mailerEntry{mailer: mailer, cachedAt: v.now()}
		}
		v.mu.Unlock()
		return mailer, nil
	})
	if err != nil {
		return nil, err
	}
	return m.(Mailer), nil
}

func decodeMailConfig(values map[string]interface{}) (MailConfig, error) {
	var cfg MailConfig
	if err := Decode(values, &cfg); err != nil {
		return cfg, apperrors.NewConfigurationError("invalid email credential", err)
	}
	return cfg, nil
}

type smtpMailer struct {
	cfg     MailConfig
	from    string
	timeout time.Duration
}

func newSMTPMailer(_ context.Context, values map[string]interface{}, _ Options) (Mailer, error) {
	cfg, err := decodeMailConfig(values)
	if err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		return nil, apperrors.NewConfigurationError("smtp host is missing", nil)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &smtpMailer{cfg: cfg, from: cfg.FromAddress(), timeout: 30 * time.Second}, nil
}

func (m *smtpMailer) From() string     { return m.from }
func (m *smtpMailer) Provider() string { return ProviderSMTP }

func (m *smtpMailer) Send(ctx context.Context, msg MailMessage) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before sending email: %w", err)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	client, err := m.dial(ctx, addr)
	if err != nil {
		return apperrors.NewProviderError(ProviderSMTP, err)
	}
	defer client.Close()

	if err := m.deliver(client, msg); err != nil {
		return apperrors.NewProviderError(ProviderSMTP, err)
	}
	return nil
}

// dial opens an implicit TLS session when secure is set, plain otherwise.
func (m *smtpMailer) dial(ctx context.Context, addr string) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: m.timeout}
	var (
		conn net.Conn
		err  error
	)
	if m.cfg.Secure {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: m.cfg.Host}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake failed: %w", err)
	}
	return client, nil
}

func (m *smtpMailer) deliver(client *smtp.Client, msg MailMessage) error {
	if !m.cfg.Secure {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if m.cfg.Auth.User != "" {
		auth := smtp.PlainAuth("", m.cfg.Auth.User, m.cfg.Auth.Pass, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	envelopeFrom := m.cfg.FromEmail
	if envelopeFrom == "" {
		envelopeFrom = m.cfg.Auth.User
	}
	if err := client.Mail(envelopeFrom); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("failed to set recipient %s: %w", msg.To, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err := w.Write(buildMessage(m.from, msg, m.cfg.Host)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}

func buildMessage(from string, msg MailMessage, host string) []byte {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", from))
	b.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", sanitizeHeader(msg.Subject))))
	b.WriteString(fmt.Sprintf("Message-ID: <%d@%s>\r\n", time.Now().UnixNano(), host))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

type sesMailer struct {
	client awsclient.SESAPI
	from   string
}

func newSESMailer(ctx context.Context, values map[string]interface{}, opts Options) (Mailer, error) {
	cfg, err := decodeMailConfig(values)
	if err != nil {
		return nil, err
	}
	if cfg.FromEmail == "" {
		return nil, apperrors.NewConfigurationError("ses fromEmail is missing", nil)
	}
	client, err := awsclient.NewSESClient(ctx, cfg.StaticCredentials, opts.AWSRegion)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to build SES client", err)
	}
	return &sesMailer{client: client, from: cfg.FromAddress()}, nil
}

func (m *sesMailer) From() string     { return m.from }
func (m *sesMailer) Provider() string { return ProviderSES }

func (m *sesMailer) Send(ctx context.Context, msg MailMessage) error {
	_, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(m.from),
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
			},
		},
	})
	if err != nil {
		return apperrors.NewProviderError(ProviderSES, err)
	}
	return nil
}
