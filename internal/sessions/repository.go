package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tariffdesk/tariffdesk/internal/results"
	"github.com/tariffdesk/tariffdesk/pkg/repository"
)

type store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore creates a database-backed Store for session persistence.
func NewStore(db *sql.DB, logger *slog.Logger) Store {
	return &store{
		db:     db,
		logger: logger.With("system", "sessions.store"),
	}
}

func (s *store) CreateRun(ctx context.Context, userID string) (uuid.UUID, error) {
	q := `
		INSERT INTO runs(user_id, kind, status)
		VALUES ($1, 'single', $2)
		RETURNING id`

	var id uuid.UUID
	if err := s.db.QueryRowContext(ctx, q, userID, runStatusPending).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

func (s *store) AppendClarification(ctx context.Context, runID uuid.UUID, msg ClarificationMessage) error {
	var options []byte
	if len(msg.Options) > 0 {
		b, err := json.Marshal(msg.Options)
		if err != nil {
			return fmt.Errorf("marshal options: %w", err)
		}
		options = b
	}

	q := `
		INSERT INTO clarification_messages(run_id, step, type, content, options, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, q, runID, msg.Step, msg.Type, msg.Content, options, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("append clarification: %w", err)
	}
	return nil
}

func (s *store) SaveProduct(ctx context.Context, userID string, runID uuid.UUID, fields ProductFields) (uuid.UUID, error) {
	materials, err := json.Marshal(fields.Materials)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal materials: %w", err)
	}

	q := `
		INSERT INTO products(run_id, user_id, name, description, origin, materials, cost, vendor, sku)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	var id uuid.UUID
	err = s.db.QueryRowContext(ctx, q,
		runID,
		userID,
		fields.Name,
		fields.Description,
		fields.Origin,
		materials,
		fields.Cost,
		fields.Vendor,
		fields.SKU,
	).Scan(&id)

	if err != nil {
		return uuid.Nil, fmt.Errorf("save product: %w", err)
	}
	return id, nil
}

func (s *store) SaveResult(ctx context.Context, productID, runID uuid.UUID, result results.ClassificationResult) (uuid.UUID, error) {
	alternates, err := json.Marshal(result.Alternates)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal alternates: %w", err)
	}

	var verification []byte
	if result.Primary.Verification != nil {
		b, err := json.Marshal(result.Primary.Verification)
		if err != nil {
			return uuid.Nil, fmt.Errorf("marshal verification: %w", err)
		}
		verification = b
	}

	var rulings []byte
	if len(result.Primary.Rulings) > 0 {
		b, err := json.Marshal(result.Primary.Rulings)
		if err != nil {
			return uuid.Nil, fmt.Errorf("marshal rulings: %w", err)
		}
		rulings = b
	}

	q := `
		INSERT INTO classification_results(
			product_id, run_id, hts_code, description, confidence,
			tariff_rate, reasoning, verification, rulings, alternates)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	var id uuid.UUID
	err = s.db.QueryRowContext(ctx, q,
		productID,
		runID,
		result.Primary.HTS,
		result.Primary.Description,
		result.Primary.Confidence,
		result.Primary.TariffRate,
		result.Primary.Reasoning,
		verification,
		rulings,
		alternates,
	).Scan(&id)

	if err != nil {
		return uuid.Nil, fmt.Errorf("save result: %w", err)
	}
	return id, nil
}

func (s *store) SetRunStatus(ctx context.Context, runID uuid.UUID, status string) error {
	q := `UPDATE runs SET status = $1, updated_at = now() WHERE id = $2`

	if err := repository.ExecExpectOne(ctx, s.db, q, status, runID); err != nil {
		return fmt.Errorf("set run status: %w", err)
	}
	return nil
}

func (s *store) RecordApproval(ctx context.Context, productID, resultID uuid.UUID, approvedBy string, approved bool) error {
	q := `
		UPDATE classification_results
		SET approved = $1,
		    approved_by = CASE WHEN $1 THEN $2 ELSE NULL END,
		    approved_at = CASE WHEN $1 THEN now() ELSE NULL END
		WHERE id = $3 AND product_id = $4`

	if err := repository.ExecExpectOne(ctx, s.db, q, approved, approvedBy, resultID, productID); err != nil {
		return fmt.Errorf("record approval: %w", err)
	}

	s.logger.Info("approval recorded", "resultId", resultID, "approved", approved)
	return nil
}
