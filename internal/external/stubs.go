package external

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// StubEmailProvider logs sends instead of calling a vendor API. Used in
// local development when no SendGrid key is configured.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a stub provider that logs each send.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailProvider{logger: logger}
}

// Send logs the email and returns a synthetic message ID.
func (p *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	msgID := "stub_" + uuid.New().String()
	p.logger.InfoContext(ctx, "stub email send",
		"to", input.To,
		"subject", input.Subject,
		"reference_id", input.ReferenceID,
		"provider_message_id", msgID,
	)
	return msgID, nil
}

var _ EmailProvider = (*StubEmailProvider)(nil)
