package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = apperrors.ErrRecordNotFound

// ErrStale is returned when a conditional update lost a race with another writer.
var ErrStale = errors.New("record changed concurrently")

// ErrDuplicate is returned when an insert would break a uniqueness rule,
// such as a second OPEN conversation for one customer.
var ErrDuplicate = errors.New("record already exists")

const uniqueViolation = "23505"

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
