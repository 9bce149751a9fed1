package exceptions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/tariffdesk/tariffdesk/internal/policy"
	"github.com/tariffdesk/tariffdesk/internal/results"
	"github.com/tariffdesk/tariffdesk/pkg/pagination"
	"github.com/tariffdesk/tariffdesk/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	params     policy.Params
	pagination pagination.Config
}

// New creates a review queue repository implementing the System interface.
func New(
	db *sql.DB,
	logger *slog.Logger,
	params policy.Params,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "exceptions"),
		params:     params,
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

// The queue joins results against per-reviewer thresholds, so it cannot use
// the single-table query builder; the join is expressed directly. Membership
// is confidence below the effective threshold and not approved. Confidence
// ascending approximates priority ordering because the bands are monotonic
// in confidence.
const listSQL = `
	SELECT
		cr.id, cr.product_id, cr.run_id, cr.hts_code, cr.description,
		cr.confidence, cr.tariff_rate, cr.reasoning, cr.verification,
		cr.alternates, cr.created_at,
		p.name, p.user_id,
		COALESCE(s.confidence_threshold, $1) AS threshold
	FROM classification_results cr
	JOIN products p ON p.id = cr.product_id
	LEFT JOIN user_settings s ON s.user_id = p.user_id
	WHERE cr.approved = false
	  AND cr.confidence < COALESCE(s.confidence_threshold, $1)
	  AND ($2 = '' OR p.user_id = $2)
	ORDER BY cr.confidence ASC, cr.created_at ASC
	LIMIT $3 OFFSET $4`

const countSQL = `
	SELECT COUNT(*)
	FROM classification_results cr
	JOIN products p ON p.id = cr.product_id
	LEFT JOIN user_settings s ON s.user_id = p.user_id
	WHERE cr.approved = false
	  AND cr.confidence < COALESCE(s.confidence_threshold, $1)
	  AND ($2 = '' OR p.user_id = $2)`

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	userID string,
) (*pagination.PageResult[Item], error) {
	page.Normalize(r.pagination)

	defaultPct := int(math.Round(policy.DefaultThreshold * 100))

	total, err := repository.QueryCount(ctx, r.db, countSQL, defaultPct, userID)
	if err != nil {
		return nil, fmt.Errorf("count exceptions: %w", err)
	}

	args := []any{defaultPct, userID, page.PageSize, page.Offset()}
	items, err := repository.QueryMany(ctx, r.db, listSQL, args, r.scanItem)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Approve(ctx context.Context, resultID uuid.UUID, approvedBy string) error {
	q := `
		UPDATE classification_results
		SET approved = true, approved_by = $1, approved_at = now()
		WHERE id = $2 AND approved = false`

	if err := repository.ExecExpectOne(ctx, r.db, q, approvedBy, resultID); err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("exception approved", "resultId", resultID, "approvedBy", approvedBy)
	return nil
}

// scanItem reconstructs the stored result and decorates it with triage on
// the way out. Triage is recomputed on every read.
func (r *repo) scanItem(s repository.Scanner) (Item, error) {
	var (
		item         Item
		verification []byte
		alternates   []byte
	)

	err := s.Scan(
		&item.ResultID,
		&item.ProductID,
		&item.RunID,
		&item.Result.Primary.HTS,
		&item.Result.Primary.Description,
		&item.Confidence,
		&item.Result.Primary.TariffRate,
		&item.Result.Primary.Reasoning,
		&verification,
		&alternates,
		&item.CreatedAt,
		&item.ProductName,
		&item.UserID,
		&item.ThresholdPercent,
	)
	if err != nil {
		return item, err
	}

	item.Result.Primary.Confidence = item.Confidence

	if len(verification) > 0 {
		var v results.RuleVerification
		if err := json.Unmarshal(verification, &v); err != nil {
			return item, fmt.Errorf("unmarshal verification: %w", err)
		}
		item.Result.Primary.Verification = &v
	}

	if len(alternates) > 0 {
		if err := json.Unmarshal(alternates, &item.Result.Alternates); err != nil {
			return item, fmt.Errorf("unmarshal alternates: %w", err)
		}
	}

	confidence := float64(item.Confidence) / 100
	threshold := float64(item.ThresholdPercent) / 100

	triage := r.params.Classify(&item.Result, confidence, threshold)
	item.Priority = triage.Priority
	item.Category = triage.Category
	item.Reason = triage.Reason

	return item, nil
}
