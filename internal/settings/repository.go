package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tariffdesk/tariffdesk/internal/policy"
	"github.com/tariffdesk/tariffdesk/pkg/pagination"
	"github.com/tariffdesk/tariffdesk/pkg/query"
	"github.com/tariffdesk/tariffdesk/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a settings repository implementing the System interface.
func New(
	db *sql.DB,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "settings"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
) (*pagination.PageResult[Setting], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "UserID")

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count settings: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	settings, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanSetting)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}

	result := pagination.NewPageResult(settings, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, userID string) (*Setting, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingUser
	}

	q, args := query.NewBuilder(projection).BuildSingle("UserID", userID)

	setting, err := repository.QueryOne(ctx, r.db, q, args, scanSetting)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &setting, nil
}

func (r *repo) Upsert(ctx context.Context, userID string, cmd UpdateCommand) (*Setting, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingUser
	}
	if cmd.ThresholdPercent < 0 || cmd.ThresholdPercent > 100 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreshold, cmd.ThresholdPercent)
	}

	q := `
		INSERT INTO user_settings(user_id, confidence_threshold, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET confidence_threshold = EXCLUDED.confidence_threshold,
		    updated_at = now()
		RETURNING user_id, confidence_threshold, updated_at`

	args := []any{userID, cmd.ThresholdPercent}

	setting, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Setting, error) {
		return repository.QueryOne(ctx, tx, q, args, scanSetting)
	})

	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("setting saved", "userId", setting.UserID, "threshold", setting.ThresholdPercent)
	return &setting, nil
}

func (r *repo) Delete(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrMissingUser
	}

	q := `DELETE FROM user_settings WHERE user_id = $1`

	err := repository.ExecExpectOne(ctx, r.db, q, userID)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("setting deleted", "userId", userID)
	return nil
}

// Threshold returns the reviewer's threshold in [0,1]. A missing row is not
// an error; the policy default applies until the reviewer configures one.
func (r *repo) Threshold(ctx context.Context, userID string) (float64, error) {
	setting, err := r.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return policy.DefaultThreshold, nil
		}
		return 0, err
	}
	return setting.Threshold(), nil
}
