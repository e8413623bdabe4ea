package synth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repobridge/internal/errors"
)

type fakeCompleter struct {
	calls     int
	failUntil int // rate-limit failures before success
	err       error
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.calls <= f.failUntil {
		return "", errors.RateLimit("quota", 0, fmt.Errorf("429"))
	}
	return "response for: " + prompt, nil
}

func newTestSynthesizer(c Completer, attempts int) (*Synthesizer, *[]time.Duration) {
	s := NewSynthesizer(c, attempts, 100*time.Millisecond, nil)
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return s, &slept
}

func TestSynthesize(t *testing.T) {
	t.Run("SucceedsFirstTry", func(t *testing.T) {
		c := &fakeCompleter{}
		s, slept := newTestSynthesizer(c, 4)

		out, err := s.Synthesize(context.Background(), "p")
		require.NoError(t, err)
		assert.Equal(t, "response for: p", out)
		assert.Equal(t, 1, c.calls)
		assert.Empty(t, *slept)
	})

	t.Run("RetriesRateLimitWithExponentialBackoff", func(t *testing.T) {
		c := &fakeCompleter{failUntil: 2}
		s, slept := newTestSynthesizer(c, 4)

		out, err := s.Synthesize(context.Background(), "p")
		require.NoError(t, err)
		assert.Equal(t, "response for: p", out)
		assert.Equal(t, 3, c.calls)
		assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *slept)
	})

	t.Run("HonorsServerSuggestedDelay", func(t *testing.T) {
		c := &suggestingCompleter{}
		s, slept := newTestSynthesizer(c, 3)

		_, err := s.Synthesize(context.Background(), "p")
		require.NoError(t, err)
		require.Len(t, *slept, 1)
		assert.Equal(t, 7*time.Second, (*slept)[0])
	})

	t.Run("ExhaustsAttemptsAndSurfacesError", func(t *testing.T) {
		c := &fakeCompleter{failUntil: 100}
		s, slept := newTestSynthesizer(c, 3)

		_, err := s.Synthesize(context.Background(), "p")
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindRateLimit))
		assert.Equal(t, 3, c.calls)
		assert.Len(t, *slept, 2, "no sleep after the final attempt")
	})

	t.Run("OtherErrorsNotRetried", func(t *testing.T) {
		c := &fakeCompleter{err: fmt.Errorf("boom")}
		s, _ := newTestSynthesizer(c, 4)

		_, err := s.Synthesize(context.Background(), "p")
		require.Error(t, err)
		assert.Equal(t, 1, c.calls)
	})
}

type suggestingCompleter struct {
	calls int
}

func (s *suggestingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.calls == 1 {
		return "", errors.RateLimit("quota", 7*time.Second, nil)
	}
	return "ok", nil
}
