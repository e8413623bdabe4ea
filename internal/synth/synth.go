package synth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"repobridge/internal/errors"
)

const backoffFactor = 2

// Synthesizer issues a prompt to the completion collaborator, retrying
// rate-limit failures with a bounded loop and exponential backoff. The same
// prompt is re-issued on every attempt.
type Synthesizer struct {
	completer Completer
	attempts  int
	baseDelay time.Duration
	logger    *zap.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSynthesizer(completer Completer, attempts int, baseDelay time.Duration, logger *zap.Logger) *Synthesizer {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		completer: completer,
		attempts:  attempts,
		baseDelay: baseDelay,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// Synthesize runs the completion call. Only RATE_LIMIT errors are retried;
// everything else surfaces unchanged. After the attempt cap the last
// rate-limit error surfaces as-is.
func (s *Synthesizer) Synthesize(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		raw, err := s.completer.Complete(ctx, prompt)
		if err == nil {
			return raw, nil
		}
		if !errors.IsKind(err, errors.KindRateLimit) {
			return "", err
		}
		lastErr = err

		if attempt == s.attempts-1 {
			break
		}
		delay := s.baseDelay
		if e, ok := err.(*errors.Error); ok && e.RetryAfter > 0 {
			delay = e.RetryAfter
		}
		for i := 0; i < attempt; i++ {
			delay *= backoffFactor
		}
		s.logger.Warn("completion rate limited, backing off",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))
		if err := s.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
