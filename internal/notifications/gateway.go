// Package notifications provides the outbound notification gateway: a thin
// adapter that renders a named template against a data bag and hands the
// result to the transactional email provider.
//
// The gateway never returns a Go error. Every failure mode, including a
// missing provider credential, is captured in the SendResult so callers
// uniformly check the Success flag. Callers own the
// decision of whether a failed send is retried (the email queue) or merely
// logged (best-effort handler notifications).
package notifications

import (
	"context"
	"log/slog"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/external"
	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// SendResult is the outcome of a gateway send attempt.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	// Error holds a human-readable failure description when Success is false.
	Error string
}

// Gateway renders templates and delivers email through the configured
// provider.
type Gateway struct {
	provider external.EmailProvider
	from     types.SenderIdentity
	logger   *slog.Logger
}

// GatewayConfig holds the parameters for creating a Gateway.
type GatewayConfig struct {
	// Provider may be nil when no email credential is configured; the
	// gateway then reports a configuration error per send without any
	// network I/O.
	Provider external.EmailProvider
	From     types.SenderIdentity
	Logger   *slog.Logger
}

// NewGateway creates a Gateway with the given configuration.
func NewGateway(cfg GatewayConfig) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		provider: cfg.Provider,
		from:     cfg.From,
		logger:   logger,
	}
}

// Send renders templateName against data and delivers the result to
// recipient. The referenceID correlates the provider send with the
// originating queue item or job in provider-side logs.
func (g *Gateway) Send(ctx context.Context, recipient, subject, templateName string, data map[string]any, referenceID string) SendResult {
	if recipient == "" {
		return SendResult{Success: false, Error: "missing recipient address"}
	}

	if g.provider == nil {
		g.logger.ErrorContext(ctx, "email send skipped: provider credential not configured",
			"template", templateName,
			"reference_id", referenceID,
		)
		return SendResult{Success: false, Error: "email provider credential not configured"}
	}

	body, known := Render(templateName, data)
	if !known {
		g.logger.WarnContext(ctx, "unknown email template, using generic fallback",
			"template", templateName,
			"reference_id", referenceID,
		)
	}

	msgID, err := g.provider.Send(ctx, types.SendInput{
		To:          recipient,
		From:        g.from,
		Subject:     subject,
		BodyText:    body,
		ReferenceID: referenceID,
	})
	if err != nil {
		g.logger.ErrorContext(ctx, "email send failed",
			"recipient_domain", domainOf(recipient),
			"template", templateName,
			"reference_id", referenceID,
			"error", err,
		)
		return SendResult{Success: false, Error: err.Error()}
	}

	g.logger.InfoContext(ctx, "email sent",
		"recipient_domain", domainOf(recipient),
		"template", templateName,
		"reference_id", referenceID,
		"provider_message_id", msgID,
	)

	return SendResult{Success: true, ProviderMessageID: msgID}
}

// domainOf returns the domain part of an email address for logging without
// exposing the full recipient address.
func domainOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == '@' {
			return addr[i+1:]
		}
	}
	return "invalid"
}
