package database

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// Postgres error codes we map to domain sentinels.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// isForeignKeyViolation reports whether err is a Postgres foreign_key_violation.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}

// buildUpdateQuery builds a dynamic UPDATE query with the given fields
// and a mandatory updated_at bump. Column order is deterministic so the
// generated SQL is stable for a given field set.
func buildUpdateQuery(table string, id uuid.UUID, updates map[string]any, returningFields string) (string, []any, error) {
	if len(updates) == 0 {
		return "", nil, domain.ErrNoFieldsToUpdate
	}

	columns := make([]string, 0, len(updates))
	for column := range updates {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	updateFields := make([]string, 0, len(updates)+1)
	args := make([]any, 0, len(updates)+2)
	argPos := 1

	for _, column := range columns {
		updateFields = append(updateFields, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, updates[column])
		argPos++
	}

	// Add updated_at
	updateFields = append(updateFields, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now().UTC())
	argPos++

	// Add ID for WHERE clause
	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE id = $%d
		RETURNING %s
	`, table, strings.Join(updateFields, ", "), argPos, returningFields)

	return query, args, nil
}
