package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQL error classes we map onto domain errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Constraint names from the schema, used to tell which uniqueness rule a
// rejected insert tripped over.
const (
	ConstraintUsername = "users_username_key"
	ConstraintEmail    = "users_email_key"
)

// IsUniqueViolation reports whether err is a unique-constraint violation.
// With an empty constraint any unique violation matches; otherwise only the
// named constraint does. Constraint names are matched exactly.
func IsUniqueViolation(err error, constraint string) bool {
	pqErr, ok := asPQError(err)
	if !ok || string(pqErr.Code) != codeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// IsForeignKeyViolation reports whether err is a foreign-key violation,
// typically a session row pointing at a deleted user.
func IsForeignKeyViolation(err error) bool {
	pqErr, ok := asPQError(err)
	return ok && string(pqErr.Code) == codeForeignKeyViolation
}

func asPQError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil, false
	}
	return pqErr, true
}
