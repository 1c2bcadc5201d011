package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rtyy/commentsd/internal/store"
)

// wrapDBError converts sql.ErrNoRows to store.ErrNotFound and wraps
// anything else with the operation name, so callers can errors.Is against
// the store package's sentinels regardless of which query produced them.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: %s: %w", op, store.ErrNotFound)
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}
