package bootstrap

import (
	appconfig "github.com/wolfman30/booking-platform/internal/config"
	"github.com/wolfman30/booking-platform/internal/notify"
	"github.com/wolfman30/booking-platform/pkg/logging"
)

// BuildEmailSender selects the email transport named by EMAIL_PROVIDER.
// sesClient may be nil when AWS is not configured.
func BuildEmailSender(cfg *appconfig.Config, sesClient notify.SESAPI, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	var ses *notify.SESSender
	if sesClient != nil {
		ses = notify.NewSESSender(sesClient, notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	return notify.ChooseSender(cfg.EmailProvider, sg, ses, logger)
}
