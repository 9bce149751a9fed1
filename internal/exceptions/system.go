package exceptions

import (
	"context"

	"github.com/google/uuid"

	"github.com/tariffdesk/tariffdesk/pkg/pagination"
)

// System defines the public contract for review queue operations.
type System interface {
	Handler() *Handler

	// List returns the current review queue for a reviewer (or all reviewers
	// when userID is empty), lowest confidence first.
	List(ctx context.Context, page pagination.PageRequest, userID string) (*pagination.PageResult[Item], error)

	// Approve marks a result accepted, removing it from the queue.
	Approve(ctx context.Context, resultID uuid.UUID, approvedBy string) error
}
