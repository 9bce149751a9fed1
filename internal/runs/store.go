package runs

import (
	"context"

	"github.com/google/uuid"

	"github.com/tariffdesk/tariffdesk/internal/classify"
	"github.com/tariffdesk/tariffdesk/pkg/pagination"
)

// Store persists the run lifecycle: the row created at upload, progress
// updates folded in from poll snapshots, and the terminal items written out
// as product/result rows for the review queue.
type Store interface {
	Create(ctx context.Context, userID, fileName string) (uuid.UUID, error)
	UpdateFileKey(ctx context.Context, id uuid.UUID, key string) error
	SetHandle(ctx context.Context, id uuid.UUID, handle classify.BulkRunHandle) error
	SetStatus(ctx context.Context, id uuid.UUID, status classify.RunStatus) error
	UpdateProgress(ctx context.Context, id uuid.UUID, snap *classify.BulkRun) error
	Find(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Run], error)
	SaveItem(ctx context.Context, runID uuid.UUID, userID string, item classify.BulkItem) error
	ListItems(ctx context.Context, runID uuid.UUID) ([]ItemRecord, error)
}
