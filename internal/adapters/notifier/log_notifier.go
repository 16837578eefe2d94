package notifier

import (
	"context"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

// LogNotifier writes approval notices, decision links included, to the application log.
// It is used when no SMTP host is configured.
type LogNotifier struct {
	logger domain.Logger
}

func NewLogNotifier(logger domain.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyApprovalRequest(ctx context.Context, notice domain.ApprovalNotice) error {
	n.logger.Info(ctx, "Approval requested",
		"operator", notice.OperatorContact,
		"connection_id", notice.ConnectionID,
		"display_name", notice.RequesterName,
		"accept_link", notice.Links.Accept,
		"reject_link", notice.Links.Reject,
	)
	return nil
}
