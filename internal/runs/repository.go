package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tariffdesk/tariffdesk/internal/classify"
	"github.com/tariffdesk/tariffdesk/pkg/pagination"
	"github.com/tariffdesk/tariffdesk/pkg/query"
	"github.com/tariffdesk/tariffdesk/pkg/repository"
)

type pgStore struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// NewStore creates a database-backed Store for run persistence.
func NewStore(db *sql.DB, logger *slog.Logger, pagination pagination.Config) Store {
	return &pgStore{
		db:         db,
		logger:     logger.With("system", "runs.store"),
		pagination: pagination,
	}
}

func (s *pgStore) Create(ctx context.Context, userID, fileName string) (uuid.UUID, error) {
	q := `
		INSERT INTO runs(user_id, kind, status, file_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, q, userID, KindBulk, classify.RunPending, fileName).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

func (s *pgStore) UpdateFileKey(ctx context.Context, id uuid.UUID, key string) error {
	q := `UPDATE runs SET file_key = $1, updated_at = now() WHERE id = $2`

	if err := repository.ExecExpectOne(ctx, s.db, q, key, id); err != nil {
		return repository.MapError(fmt.Errorf("update file key: %w", err), ErrNotFound, ErrDuplicate)
	}
	return nil
}

func (s *pgStore) SetStatus(ctx context.Context, id uuid.UUID, status classify.RunStatus) error {
	q := `UPDATE runs SET status = $1, updated_at = now() WHERE id = $2`

	if err := repository.ExecExpectOne(ctx, s.db, q, status, id); err != nil {
		return repository.MapError(fmt.Errorf("set run status: %w", err), ErrNotFound, ErrDuplicate)
	}
	return nil
}

func (s *pgStore) SetHandle(ctx context.Context, id uuid.UUID, handle classify.BulkRunHandle) error {
	q := `
		UPDATE runs
		SET remote_id = $1, status = $2, total_items = $3, updated_at = now()
		WHERE id = $4`

	if err := repository.ExecExpectOne(ctx, s.db, q, handle.RunID, handle.Status, handle.TotalItems, id); err != nil {
		return repository.MapError(fmt.Errorf("set run handle: %w", err), ErrNotFound, ErrDuplicate)
	}
	return nil
}

func (s *pgStore) UpdateProgress(ctx context.Context, id uuid.UUID, snap *classify.BulkRun) error {
	summary, err := json.Marshal(snap.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	q := `
		UPDATE runs
		SET status = $1,
		    total_items = $2,
		    progress_current = $3,
		    progress_total = $4,
		    summary = $5,
		    updated_at = now()
		WHERE id = $6`

	err = repository.ExecExpectOne(ctx, s.db, q,
		snap.Status,
		snap.TotalItems,
		snap.ProgressCurrent,
		snap.ProgressTotal,
		summary,
		id,
	)
	if err != nil {
		return repository.MapError(fmt.Errorf("update run progress: %w", err), ErrNotFound, ErrDuplicate)
	}
	return nil
}

func (s *pgStore) Find(ctx context.Context, id uuid.UUID) (*Run, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	run, err := repository.QueryOne(ctx, s.db, q, args, scanRun)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &run, nil
}

func (s *pgStore) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Run], error) {
	page.Normalize(s.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "FileName")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	rows, err := repository.QueryMany(ctx, s.db, pageSQL, pageArgs, scanRun)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	result := pagination.NewPageResult(rows, total, page.Page, page.PageSize)
	return &result, nil
}

// SaveItem writes one terminal bulk item as product and result rows so it
// participates in the review queue alongside interactive classifications.
// Items without a classification result persist the product alone.
func (s *pgStore) SaveItem(ctx context.Context, runID uuid.UUID, userID string, item classify.BulkItem) error {
	fields := extractFields(item)

	materials, err := json.Marshal(fields.materials)
	if err != nil {
		return fmt.Errorf("marshal materials: %w", err)
	}

	productSQL := `
		INSERT INTO products(run_id, user_id, name, description, origin, materials, cost, vendor, sku, row_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	var productID uuid.UUID
	err = s.db.QueryRowContext(ctx, productSQL,
		runID,
		userID,
		fields.name,
		fields.description,
		fields.origin,
		materials,
		fields.cost,
		fields.vendor,
		fields.sku,
		item.RowNumber,
	).Scan(&productID)
	if err != nil {
		return fmt.Errorf("save bulk product: %w", err)
	}

	if item.Result == nil {
		return nil
	}

	alternates, err := json.Marshal(item.Result.Alternates)
	if err != nil {
		return fmt.Errorf("marshal alternates: %w", err)
	}

	var verification []byte
	if item.Result.Primary.Verification != nil {
		b, err := json.Marshal(item.Result.Primary.Verification)
		if err != nil {
			return fmt.Errorf("marshal verification: %w", err)
		}
		verification = b
	}

	resultSQL := `
		INSERT INTO classification_results(
			product_id, run_id, hts_code, description, confidence,
			tariff_rate, reasoning, verification, alternates)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.db.ExecContext(ctx, resultSQL,
		productID,
		runID,
		item.Result.Primary.HTS,
		item.Result.Primary.Description,
		item.Result.Primary.Confidence,
		item.Result.Primary.TariffRate,
		item.Result.Primary.Reasoning,
		verification,
		alternates,
	)
	if err != nil {
		return fmt.Errorf("save bulk result: %w", err)
	}

	return nil
}

// ListItems returns the persisted result history for a run: one record per
// product row, joined with its classification result when one was stored.
func (s *pgStore) ListItems(ctx context.Context, runID uuid.UUID) ([]ItemRecord, error) {
	q := `
		SELECT p.id, cr.id, p.row_number, p.name, p.origin,
		       cr.hts_code, cr.confidence, cr.tariff_rate,
		       cr.approved, cr.approved_by, p.created_at
		FROM products p
		LEFT JOIN classification_results cr ON cr.product_id = p.id
		WHERE p.run_id = $1
		ORDER BY p.row_number, p.created_at`

	return repository.QueryMany(ctx, s.db, q, []any{runID}, scanItemRecord)
}

func scanItemRecord(s repository.Scanner) (ItemRecord, error) {
	var (
		rec        ItemRecord
		resultID   sql.Null[uuid.UUID]
		rowNumber  sql.NullInt64
		origin     sql.NullString
		hts        sql.NullString
		confidence sql.NullInt64
		tariffRate sql.NullString
		approved   sql.NullBool
		approvedBy sql.NullString
	)

	err := s.Scan(
		&rec.ProductID,
		&resultID,
		&rowNumber,
		&rec.Name,
		&origin,
		&hts,
		&confidence,
		&tariffRate,
		&approved,
		&approvedBy,
		&rec.CreatedAt,
	)
	if err != nil {
		return ItemRecord{}, err
	}

	if resultID.Valid {
		id := resultID.V
		rec.ResultID = &id
	}
	rec.RowNumber = int(rowNumber.Int64)
	rec.Origin = origin.String
	rec.HTS = hts.String
	rec.Confidence = int(confidence.Int64)
	rec.TariffRate = tariffRate.String
	rec.Approved = approved.Bool
	rec.ApprovedBy = approvedBy.String

	return rec, nil
}

type extractedFields struct {
	name        string
	description string
	origin      string
	materials   []string
	cost        *float64
	vendor      string
	sku         string
}

// extractFields pulls the common product columns out of the service's
// free-form extracted_data map. Key aliases follow the upload templates the
// classification service accepts.
func extractFields(item classify.BulkItem) extractedFields {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := item.ExtractedData[k]; ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	f := extractedFields{
		name:        get("product_name", "name"),
		description: get("description", "product_description"),
		origin:      get("origin", "country_of_origin"),
		vendor:      get("vendor", "supplier"),
		sku:         get("sku", "item_number"),
	}

	if f.name == "" {
		f.name = fmt.Sprintf("row %d", item.RowNumber)
	}

	if m := get("materials", "material_composition"); m != "" {
		for _, part := range strings.Split(m, ",") {
			if part = strings.TrimSpace(part); part != "" {
				f.materials = append(f.materials, part)
			}
		}
	}

	if c := get("cost", "unit_cost", "price"); c != "" {
		c = strings.TrimPrefix(c, "$")
		if v, err := strconv.ParseFloat(c, 64); err == nil {
			f.cost = &v
		}
	}

	return f
}
