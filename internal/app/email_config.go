package app

import (
	"go.uber.org/zap"

	"github.com/charlesng35/clubhouse/pkg/mail"
)

// LogMailer builds the mailer that records outbound messages in the application log.
func (c EmailConfig) LogMailer(log *zap.Logger) *mail.LogMailer {
	return &mail.LogMailer{
		Log:         log,
		From:        c.From,
		IncludeBody: c.LogBody,
	}
}
