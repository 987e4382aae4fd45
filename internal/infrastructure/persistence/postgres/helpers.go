package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/verida/notification-server/pkg/errors"
)

const pgUniqueViolation = "23505"

// translateError maps driver errors onto the registry.Store sentinels.
// A missing row is ErrNotFound; a duplicate key on insert means another
// writer created the record first, which is a revision conflict.
func translateError(err error, action string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return apperrors.ErrRevisionConflict
	}
	return apperrors.Mark(apperrors.Wrap(err, "failed to "+action), apperrors.ErrStore)
}
