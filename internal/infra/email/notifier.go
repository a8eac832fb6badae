package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/courtvision/analysis-client/internal/domain/port"
	"go.uber.org/zap"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *zap.Logger
}

var _ port.FailureNotifier = (*SMTPNotifier)(nil)

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, send: smtp.SendMail, logger: logger}
}

// NotifyFailure mails the requester once their analysis has permanently
// failed. Requests without an address are skipped.
func (n *SMTPNotifier) NotifyFailure(_ context.Context, userEmail, requestID, videoKey, errorMsg string) error {
	if strings.TrimSpace(userEmail) == "" {
		n.logger.Debug("no recipient for failure notification", zap.String("request_id", requestID))
		return nil
	}

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	msg := failureMessage(n.from, userEmail, requestID, videoKey, errorMsg)

	if err := n.send(addr, nil, n.from, []string{userEmail}, []byte(msg)); err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", userEmail),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", userEmail),
		zap.String("request_id", requestID),
	)
	return nil
}

func failureMessage(from, to, requestID, videoKey, errorMsg string) string {
	subject := fmt.Sprintf("CourtVision - Analysis Failed [Request %s]", requestID)
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"We could not analyze your basketball video.\r\n\r\n"+
			"Request ID: %s\r\n"+
			"Video: %s\r\n"+
			"Reason: %s\r\n\r\n"+
			"Please check the recording and upload it again.\r\n\r\n"+
			"-- CourtVision Analysis",
		requestID, videoKey, errorMsg,
	)
	return fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body)
}
