package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/clubhouse/internal/auth"
	"github.com/charlesng35/clubhouse/internal/membership"
)

var (
	ErrMemberNotFound  = errors.New("member not found")
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrEmailInUse      = errors.New("email address already in use")
	ErrMemberNotActive = errors.New("member is not active")
	// ErrStatusChanged reports that another request changed the member's status first.
	ErrStatusChanged = fmt.Errorf("%w: status changed concurrently", membership.ErrInvalidTransition)
)

// storeError marks a row-store failure with the shared unavailable sentinel.
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, iauth.ErrStoreUnavailable, err)
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") || strings.Contains(lower, "duplicate")
}
