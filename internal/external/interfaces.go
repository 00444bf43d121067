package external

import (
	"context"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// EmailProvider abstracts the transactional email vendor. Implementations
// return the provider's message ID on success for bounce/audit correlation.
type EmailProvider interface {
	Send(ctx context.Context, input types.SendInput) (string, error)
}
