package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestPgErrorClassification(t *testing.T) {
	wrap := func(code string) error {
		return fmt.Errorf("repo: %w", &pgconn.PgError{Code: code})
	}
	require.True(t, IsUniqueViolation(wrap("23505")))
	require.False(t, IsUniqueViolation(wrap("55P03")))
	require.True(t, IsLockContention(wrap("55P03")))
	require.True(t, IsLockContention(wrap("40P01")))
	require.False(t, IsLockContention(wrap("23505")))
	require.False(t, IsLockContention(errors.New("plain")))
	require.False(t, IsUniqueViolation(nil))
}
