package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetryConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(eris.New("flaky"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetryConfig(3), func(ctx context.Context) error {
		calls++
		return NewTransientError(eris.New("always down"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonTransientNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetryConfig(3), func(ctx context.Context) error {
		calls++
		return eris.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_PreservesValue(t *testing.T) {
	calls := 0
	got, err := DoVal(context.Background(), fastRetryConfig(3), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(eris.New("flaky"), 500)
		}
		return "payload", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "payload", got)
}

func TestDo_ContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastRetryConfig(10), func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(eris.New("flaky"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsConflictClassification(t *testing.T) {
	conflicts := []error{
		eris.New("database is locked (5) (SQLITE_BUSY)"),
		eris.New("database table is locked"),
		eris.Wrap(eris.New("ERROR: could not serialize access (SQLSTATE 40001)"), "store: upsert link"),
		&pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"},
		&pgconn.PgError{Code: "40P01", Message: "deadlock detected"},
	}
	for _, err := range conflicts {
		assert.True(t, IsConflict(err), "%v", err)
		assert.True(t, IsTransient(err), "conflicts must be retryable: %v", err)
	}

	assert.False(t, IsConflict(nil))
	assert.False(t, IsConflict(eris.New("UNIQUE constraint failed: source_records.id")))
	assert.False(t, IsConflict(&pgconn.PgError{Code: "23505", Message: "duplicate key value"}),
		"a real constraint violation never resolves on retry")
}

func TestDo_RetriesConflicts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetryConfig(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return eris.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "code %d", code)
	}
	for _, code := range []int{200, 301, 400, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), "code %d", code)
	}
}
