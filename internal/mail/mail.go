package mailSender

import (
	"context"
	"fmt"

	"medicare_service/internal/models"

	"gopkg.in/gomail.v2"
)

type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m *Mailer) Send(to, subject, body string) error {
	from := m.From
	if from == "" {
		from = m.Username
	}

	msg := gomail.NewMessage()
	msg.SetHeader("To", to)
	msg.SetHeader("From", from)
	msg.SetHeader("Subject", subject)

	msg.SetBody("text/plain", body)

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	return dialer.DialAndSend(msg)
}

// SendMessage delivers msg synchronously over SMTP.
func (m *Mailer) SendMessage(ctx context.Context, msg models.Message) error {
	const op = "mailSender.SendMessage"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := m.Send(msg.To, msg.Subject, msg.Body); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
