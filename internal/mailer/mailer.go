// Package mailer sends transactional email.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailgunMailer posts messages to the Mailgun HTTP API.
type MailgunMailer struct {
	client *resty.Client
	domain string
	from   string
	logger *slog.Logger
}

func NewMailgunMailer(apiURL, apiKey, domain, from string, logger *slog.Logger) *MailgunMailer {
	client := resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/")).
		SetBasicAuth("api", apiKey).
		SetTimeout(10 * time.Second)

	return &MailgunMailer{
		client: client,
		domain: domain,
		from:   from,
		logger: logger,
	}
}

func (m *MailgunMailer) Send(ctx context.Context, msg Message) error {
	form := map[string]string{
		"from":    m.from,
		"to":      msg.To,
		"subject": msg.Subject,
		"text":    msg.Text,
	}
	if msg.HTML != "" {
		form["html"] = msg.HTML
	}

	var result struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	resp, err := m.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&result).
		Post("/v3/" + m.domain + "/messages")
	if err != nil {
		return fmt.Errorf("mailgun request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("mailgun returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	m.logger.Info("Email sent", "to", msg.To, "id", result.ID)
	return nil
}

// LogMailer writes messages to the log instead of sending them. It is used
// when no provider is configured.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.Info("Email not sent (no provider configured)", "to", msg.To, "subject", msg.Subject, "text", msg.Text)
	return nil
}
