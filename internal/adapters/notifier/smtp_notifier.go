package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

const defaultSMTPTimeout = 15 * time.Second

var ErrNoOperatorContact = errors.New("no operator contact configured")

// SMTPNotifier mails approval notices to the operator contact.
// SMTP settings are read on every send so a config reload takes effect without restart.
type SMTPNotifier struct {
	logger         domain.Logger
	configProvider config.Provider
}

func NewSMTPNotifier(logger domain.Logger, configProvider config.Provider) *SMTPNotifier {
	return &SMTPNotifier{logger: logger, configProvider: configProvider}
}

func (n *SMTPNotifier) NotifyApprovalRequest(ctx context.Context, notice domain.ApprovalNotice) error {
	cfg := n.configProvider.Get()
	msg, err := buildMessage(cfg.SMTP, notice)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(cfg.SMTP.Host, clientOptions(cfg.SMTP)...)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client for %s: %w", cfg.SMTP.Host, err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send approval notice via %s:%d: %w", cfg.SMTP.Host, cfg.SMTP.Port, err)
	}
	n.logger.Debug(ctx, "Approval notice mailed", "connection_id", notice.ConnectionID, "to", notice.OperatorContact)
	return nil
}

func buildMessage(smtpCfg config.SMTPConfig, notice domain.ApprovalNotice) (*mail.Msg, error) {
	if strings.TrimSpace(notice.OperatorContact) == "" {
		return nil, ErrNoOperatorContact
	}
	from := smtpCfg.From
	if from == "" {
		from = smtpCfg.Username
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", from, err)
	}
	if err := msg.To(notice.OperatorContact); err != nil {
		return nil, fmt.Errorf("invalid operator contact %q: %w", notice.OperatorContact, err)
	}
	msg.Subject(Subject(notice))
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, Body(notice))
	return msg, nil
}

func clientOptions(smtpCfg config.SMTPConfig) []mail.Option {
	opts := []mail.Option{
		mail.WithPort(smtpCfg.Port),
		mail.WithTimeout(defaultSMTPTimeout),
		mail.WithTLSPortPolicy(tlsPolicy(smtpCfg.TLSPolicy)),
	}
	if smtpCfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(smtpCfg.Username),
			mail.WithPassword(smtpCfg.Password),
		)
	}
	return opts
}

func tlsPolicy(s string) mail.TLSPolicy {
	switch strings.ToLower(s) {
	case "none":
		return mail.NoTLS
	case "opportunistic":
		return mail.TLSOpportunistic
	default:
		return mail.TLSMandatory
	}
}

// New selects the notifier for the current configuration.
func New(logger domain.Logger, configProvider config.Provider) domain.ApprovalNotifier {
	if configProvider.Get().SMTP.Host == "" {
		logger.Warn(context.Background(), "SMTP host not configured; approval notices go to the log")
		return NewLogNotifier(logger)
	}
	return NewSMTPNotifier(logger, configProvider)
}
