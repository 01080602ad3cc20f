// Package notify sends operator alert emails when a task fails
// permanently. Delivery is best-effort and never affects task status.
package notify

import (
	"fmt"
	"log"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/vmeassist/opsd/internal/metrics"
)

type Config struct {
	APIKey      string
	To          string
	FromName    string
	FromAddress string
}

// Enabled reports whether enough configuration is present to send mail.
func (c Config) Enabled() bool {
	return c.APIKey != "" && c.To != ""
}

type EmailNotifier struct {
	cfg  Config
	send func(*mail.SGMailV3) error
}

func NewEmailNotifier(cfg Config) *EmailNotifier {
	client := sendgrid.NewSendClient(cfg.APIKey)

	return &EmailNotifier{
		cfg: cfg,
		send: func(m *mail.SGMailV3) error {
			response, err := client.Send(m)
			if err != nil {
				return err
			}
			if response.StatusCode >= 400 {
				return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
			}

			return nil
		},
	}
}

// TaskFailed emails a short alert with the task id, title, and captured
// error.
func (n *EmailNotifier) TaskFailed(id int64, title, errMsg string) {
	subject := fmt.Sprintf("[opsd] task %d failed: %s", id, title)
	body := fmt.Sprintf("Task %d (%q) failed.\n\nError: %s\n", id, title, errMsg)

	from := mail.NewEmail(n.cfg.FromName, n.cfg.FromAddress)
	to := mail.NewEmail("", n.cfg.To)
	email := mail.NewSingleEmail(from, subject, to, body, body)

	if err := n.send(email); err != nil {
		log.Printf("Failed to send failure alert for task %d: %v", id, err)
		metrics.BackendErrors.WithLabelValues("notify_failure").Inc()
		return
	}

	log.Printf("Failure alert sent to %s for task %d", n.cfg.To, id)
}
