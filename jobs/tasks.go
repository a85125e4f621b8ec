package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// Mailer delivers transactional mail over SMTP.
type Mailer struct {
	Host   string
	Port   int
	From   string
	Logger *slog.Logger
}

// Send delivers a single message. An unconfigured mailer only logs.
func (m *Mailer) Send(payload SendEmailPayload) error {
	if m == nil || m.Host == "" {
		if m != nil && m.Logger != nil {
			m.Logger.Info("mail delivery skipped",
				slog.String("to", payload.To),
				slog.String("subject", payload.Subject),
			)
		}
		return nil
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.From)
	fmt.Fprintf(&msg, "To: %s\r\n", payload.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", payload.Subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(payload.Body)
	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	return smtp.SendMail(addr, nil, m.From, []string{payload.To}, []byte(msg.String()))
}

// NewSendEmailHandler builds the Asynq handler for TaskTypeSendEmail.
func NewSendEmailHandler(mailer *Mailer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.To == "" {
			return asynq.SkipRetry
		}
		if err := mailer.Send(payload); err != nil {
			if logger != nil {
				logger.Error("send email", slog.String("to", payload.To), slog.Any("error", err))
			}
			return err
		}
		return nil
	}
}
