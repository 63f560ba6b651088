// Package connectors pulls payment-confirmation mail into the raw store.
package connectors

import (
	"context"

	"github.com/rodrigosardinha/gerador-query-darm/internal"
)

// MailConnector returns up to max unread messages of label. search narrows the
// mailbox query; an empty search returns everything unread.
type MailConnector interface {
	FetchInbox(ctx context.Context, label, search string, max int) ([]internal.FetchedMailMessage, error)
}
