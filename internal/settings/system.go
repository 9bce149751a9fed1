package settings

import (
	"context"

	"github.com/tariffdesk/tariffdesk/pkg/pagination"
)

// System defines the public contract for reviewer configuration operations.
type System interface {
	Handler() *Handler

	List(ctx context.Context, page pagination.PageRequest) (*pagination.PageResult[Setting], error)
	Find(ctx context.Context, userID string) (*Setting, error)
	Upsert(ctx context.Context, userID string, cmd UpdateCommand) (*Setting, error)
	Delete(ctx context.Context, userID string) error

	// Threshold returns the reviewer's confidence threshold in [0,1],
	// falling back to the policy default when no configuration exists.
	// The classification core only reads this value; it never writes it.
	Threshold(ctx context.Context, userID string) (float64, error)
}
