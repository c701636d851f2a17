package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
	"github.com/ekaya-inc/far-audit/pkg/database"
	"github.com/ekaya-inc/far-audit/pkg/models"
)

// GLRepository provides data access for GL rows and their audit decoration.
type GLRepository interface {
	// Save inserts entries in one transaction, assigning ids to entries
	// without one. Returned ids follow input order.
	Save(ctx context.Context, entries []*models.GLEntry) ([]uuid.UUID, error)
	List(ctx context.Context, limit, offset int) (*models.GLPage, error)
	ListAll(ctx context.Context) ([]*models.AuditedGLEntry, error)
	Get(ctx context.Context, id uuid.UUID) (*models.AuditedGLEntry, error)
	// SaveAuditResults replaces the audit decoration of each row in one transaction.
	SaveAuditResults(ctx context.Context, results []*models.AuditResult) error
	DeleteAll(ctx context.Context) (int64, error)
}

type glRepository struct{}

// NewGLRepository creates a new GLRepository.
func NewGLRepository() GLRepository {
	return &glRepository{}
}

var _ GLRepository = (*glRepository)(nil)

const glColumns = `
	id, account_number, description, amount::text, entry_date, category, vendor,
	contract_number, created_at, status, far_issue, far_section, evaluation_state,
	gpt_reasoning, approvals_found, approval_summary, approval_based_re_evaluation,
	re_evaluation_reason, re_evaluation_error, unknown_far_section, audited_at`

func (r *glRepository) Save(ctx context.Context, entries []*models.GLEntry) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(entries))
	now := time.Now().UTC()

	err := database.InTx(ctx, func(ctx context.Context) error {
		q, err := database.QuerierFrom(ctx)
		if err != nil {
			return err
		}

		query := `
			INSERT INTO gl_entries (
				id, account_number, description, amount, entry_date,
				category, vendor, contract_number, created_at
			) VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, $8, $9)`

		for _, e := range entries {
			if e.ID == uuid.Nil {
				e.ID = uuid.New()
			}
			if e.CreatedAt.IsZero() {
				e.CreatedAt = now
			}
			_, err := q.Exec(ctx, query,
				e.ID,
				e.AccountNumber,
				e.Description,
				decimalText(e.Amount),
				e.Date,
				e.Category,
				e.Vendor,
				e.ContractNumber,
				e.CreatedAt,
			)
			if err != nil {
				return mapError("failed to save gl entry", err)
			}
			ids = append(ids, e.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *glRepository) List(ctx context.Context, limit, offset int) (*models.GLPage, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM gl_entries`).Scan(&total); err != nil {
		return nil, mapError("failed to count gl entries", err)
	}

	rows, err := q.Query(ctx, `SELECT `+glColumns+` FROM gl_entries ORDER BY seq LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, mapError("failed to list gl entries", err)
	}
	entries, err := scanGLRows(rows)
	if err != nil {
		return nil, err
	}

	return &models.GLPage{Rows: entries, Total: total, Limit: limit, Offset: offset}, nil
}

func (r *glRepository) ListAll(ctx context.Context) ([]*models.AuditedGLEntry, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT `+glColumns+` FROM gl_entries ORDER BY seq`)
	if err != nil {
		return nil, mapError("failed to list gl entries", err)
	}
	return scanGLRows(rows)
}

func (r *glRepository) Get(ctx context.Context, id uuid.UUID) (*models.AuditedGLEntry, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, err
	}
	entry, err := scanGLEntry(q.QueryRow(ctx, `SELECT `+glColumns+` FROM gl_entries WHERE id = $1`, id))
	if err != nil {
		return nil, mapError("failed to get gl entry", err)
	}
	return entry, nil
}

func (r *glRepository) SaveAuditResults(ctx context.Context, results []*models.AuditResult) error {
	return database.InTx(ctx, func(ctx context.Context) error {
		q, err := database.QuerierFrom(ctx)
		if err != nil {
			return err
		}

		query := `
			UPDATE gl_entries
			SET status = $2, far_issue = $3, far_section = $4, evaluation_state = $5,
			    gpt_reasoning = $6, approvals_found = $7, approval_summary = $8,
			    approval_based_re_evaluation = $9, re_evaluation_reason = $10,
			    re_evaluation_error = $11, unknown_far_section = $12, audited_at = $13
			WHERE id = $1`

		for _, res := range results {
			if !res.Status.Valid() {
				return apperrors.InvalidInput("status", fmt.Sprintf("%q for gl entry %s", res.Status, res.GLEntryID))
			}
			tag, err := q.Exec(ctx, query,
				res.GLEntryID,
				string(res.Status),
				res.FarIssue,
				res.FarSection,
				string(res.State),
				res.GPTReasoning,
				res.ApprovalsFound,
				res.ApprovalSummary,
				res.ApprovalBasedReEvaluation,
				res.ReEvaluationReason,
				res.ReEvaluationError,
				res.UnknownFarSection,
				res.AuditedAt,
			)
			if err != nil {
				return mapError("failed to save audit result", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("gl entry %s: %w", res.GLEntryID, apperrors.ErrNotFound)
			}
		}
		return nil
	})
}

func (r *glRepository) DeleteAll(ctx context.Context) (int64, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := q.Exec(ctx, `DELETE FROM gl_entries`)
	if err != nil {
		return 0, mapError("failed to clear gl entries", err)
	}
	return tag.RowsAffected(), nil
}

func scanGLRows(rows pgx.Rows) ([]*models.AuditedGLEntry, error) {
	defer rows.Close()
	var entries []*models.AuditedGLEntry
	for rows.Next() {
		entry, err := scanGLEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gl entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed to iterate gl entries", err)
	}
	return entries, nil
}

func scanGLEntry(row pgx.Row) (*models.AuditedGLEntry, error) {
	var (
		e         models.GLEntry
		a         models.AuditResult
		amount    string
		status    *string
		state     string
		auditedAt *time.Time
	)
	err := row.Scan(
		&e.ID, &e.AccountNumber, &e.Description, &amount, &e.Date, &e.Category, &e.Vendor,
		&e.ContractNumber, &e.CreatedAt, &status, &a.FarIssue, &a.FarSection, &state,
		&a.GPTReasoning, &a.ApprovalsFound, &a.ApprovalSummary, &a.ApprovalBasedReEvaluation,
		&a.ReEvaluationReason, &a.ReEvaluationError, &a.UnknownFarSection, &auditedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := parseNullDecimal(&amount)
	if err != nil {
		return nil, err
	}
	e.Amount = *parsed

	out := &models.AuditedGLEntry{GLEntry: &e}
	if models.EvaluationState(state) == models.StateUnaudited || status == nil {
		return out, nil
	}

	a.GLEntryID = e.ID
	a.Status = models.ComplianceStatus(*status)
	a.State = models.EvaluationState(state)
	if auditedAt != nil {
		a.AuditedAt = *auditedAt
	}
	out.Audit = &a
	return out, nil
}
