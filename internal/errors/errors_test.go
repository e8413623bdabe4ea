package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Run("KindMatching", func(t *testing.T) {
		err := BudgetExceeded(120000, 100000)
		assert.True(t, IsKind(err, KindBudgetExceeded))
		assert.False(t, IsKind(err, KindParse))
		assert.True(t, stderrors.Is(err, &Error{Kind: KindBudgetExceeded}))
	})

	t.Run("WrappedKindMatching", func(t *testing.T) {
		inner := RateLimit("quota", time.Second, nil)
		wrapped := fmt.Errorf("synthesis failed: %w", inner)
		assert.True(t, IsKind(wrapped, KindRateLimit))
	})

	t.Run("DetailsActionableWithoutRederiving", func(t *testing.T) {
		err := BudgetExceeded(120000, 100000)
		assert.Equal(t, 120000, Detail(err, "estimated"))
		assert.Equal(t, 100000, Detail(err, "ceiling"))
		assert.Contains(t, err.Error(), "120000")
		assert.Contains(t, err.Error(), "100000")
	})

	t.Run("Unwrap", func(t *testing.T) {
		cause := fmt.Errorf("socket closed")
		err := Git("command failed", nil, cause)
		assert.True(t, stderrors.Is(err, cause))
	})

	t.Run("RetryAfter", func(t *testing.T) {
		err := RateLimit("quota", 30*time.Second, nil)
		var e *Error
		require.True(t, stderrors.As(err, &e))
		assert.Equal(t, 30*time.Second, e.RetryAfter)
	})
}
