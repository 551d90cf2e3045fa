package mail

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// ErrNoRecipients is returned when a message has no usable recipient address.
var ErrNoRecipients = errors.New("mail: at least one recipient is required")

// Message represents an outbound email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Mailer defines behaviour for sending email messages. Delivery itself lives outside this
// service; implementations adapt to whichever provider the deployment uses.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the structured log instead of delivering them.
// Bodies are only logged when IncludeBody is set, which is meant for local development.
type LogMailer struct {
	Log         *zap.Logger
	From        string
	IncludeBody bool
}

// Send implements Mailer.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return ErrNoRecipients
	}

	log := m.Log
	if log == nil {
		log = zap.NewNop()
	}

	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = m.From
	}

	fields := []zap.Field{
		zap.String("from", from),
		zap.Strings("to", recipients),
		zap.String("subject", escapeHeader(msg.Subject)),
	}
	if m.IncludeBody {
		fields = append(fields, zap.String("body", msg.Body))
	}
	log.Info("outbound email", fields...)
	return nil
}

func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	var result []string
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, exists := seen[addr]; exists {
			continue
		}
		seen[addr] = struct{}{}
		result = append(result, addr)
	}
	return result
}

func escapeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}
