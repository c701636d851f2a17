package repositories

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/far-audit/pkg/apperrors"
)

// PostgreSQL error codes mapped to apperrors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// mapError converts driver errors into apperrors sentinels, keeping the
// original as context.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, apperrors.ErrConflict, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, apperrors.ErrNotFound, pgErr.ConstraintName)
		}
	}
	return apperrors.New(apperrors.KindStore, op, err)
}

// decimalText renders d for a `$n::text::numeric` parameter.
func decimalText(d decimal.Decimal) string {
	return d.String()
}

// nullDecimalText renders an optional decimal; nil stores NULL.
func nullDecimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// parseNullDecimal parses a numeric scanned as text.
func parseNullDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("invalid numeric %q: %w", *s, err)
	}
	return &d, nil
}

// jsonbValue marshals v for a JSONB column; nil stores NULL.
func jsonbValue[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// scanJSONB unmarshals a nullable JSONB column into dst.
func scanJSONB(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
