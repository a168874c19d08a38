// Package mail implements the notification collaborator contract. Real
// delivery (SMTP, SES) lives outside this core; the log mailer keeps the
// flow observable in development and tests.
package mail

import (
	"context"

	"docucloud.org/internal/obs"
)

// LogMailer writes would-be deliveries to the structured log instead of
// sending them.
type LogMailer struct{}

// SendPasswordReset logs the reset link destination. The link embeds the
// raw token, so the URL itself is never logged — only the recipient.
func (LogMailer) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	obs.Log("info", "password_reset_mail", map[string]any{"to": to})
	return nil
}
