package notify

import (
	"context"

	domain "github.com/oncallops/flare/pkg/types"
)

// Dispatcher delivers a single intent to its channels. Implementations own
// retries and rate limiting; the engine treats Dispatch as fire-and-forget
// and only records failures.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent domain.DeliveryIntent) error
}
