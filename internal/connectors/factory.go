package connectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rodrigosardinha/gerador-query-darm/internal/config"
	gmailconnector "github.com/rodrigosardinha/gerador-query-darm/internal/connectors/gmail"
	imapconnector "github.com/rodrigosardinha/gerador-query-darm/internal/connectors/imap"
)

// New returns the connector for provider ("gmail" or "imap").
func New(ctx context.Context, cfg config.Config, provider string, log logrus.FieldLogger) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg, log)
	case "imap":
		return imapconnector.NewConnector(cfg, log)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}
