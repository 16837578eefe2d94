package notifier

import (
	"fmt"
	"strings"
	"time"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

// Subject returns the mail subject for an approval notice.
func Subject(notice domain.ApprovalNotice) string {
	return fmt.Sprintf("Join request from %s", sanitizeHeader(notice.RequesterName))
}

// Body renders the plain text approval notice. Each link resolves the request once.
func Body(notice domain.ApprovalNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s wants to join the chat.\n\n", notice.RequesterName)
	fmt.Fprintf(&b, "Connection: %s\n", notice.ConnectionID)
	if !notice.RequestedAt.IsZero() {
		fmt.Fprintf(&b, "Requested at: %s\n", notice.RequestedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("\nApprove:\n")
	b.WriteString(notice.Links.Accept)
	b.WriteString("\n\nReject:\n")
	b.WriteString(notice.Links.Reject)
	b.WriteString("\n\nEach link works once. The request is dropped if the requester disconnects first.\n")
	return b.String()
}

// sanitizeHeader keeps a display name from breaking out of a header line.
func sanitizeHeader(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, s)
}
