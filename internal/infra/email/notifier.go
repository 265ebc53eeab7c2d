package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	send   SendFunc
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, send: smtp.SendMail, logger: logger}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, userEmail, jobID, sourcePrefix, errorMsg string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	msg := buildFailureMessage(n.from, userEmail, jobID, sourcePrefix, errorMsg)

	if err := n.send(addr, nil, n.from, []string{userEmail}, []byte(msg)); err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", userEmail),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", userEmail),
		zap.String("job_id", jobID),
	)
	return nil
}

func buildFailureMessage(from, to, jobID, sourcePrefix, errorMsg string) string {
	subject := fmt.Sprintf("FIAP X - Frame Expansion Failed [Job %s]", jobID)
	body := strings.Join([]string{
		"Hello,",
		"",
		"Your frame expansion job could not be completed.",
		"",
		"Job ID: " + jobID,
		"Sources: " + sourcePrefix,
		"Error: " + errorMsg,
		"",
		"Check that every source image exists and the durations are valid, then submit the job again.",
		"",
		"-- FIAP X Frame Expander",
	}, "\r\n")

	return fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body)
}
