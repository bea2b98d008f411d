package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/CytrexSGR/newsbrief/internal/domain"
)

func fastConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("corpus query: %w", domain.ErrDependencyUnavailable)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("Do() attempts = %d, want 3", attempts)
	}
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return domain.ErrValidation
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Do() error = %v, want ErrValidation", err)
	}
	if attempts != 1 {
		t.Errorf("Do() attempts = %d, want 1", attempts)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return fmt.Errorf("redis publish: %w", domain.ErrDependencyUnavailable)
	})
	if !errors.Is(err, ErrMaxAttemptsExceeded) {
		t.Errorf("Do() error = %v, want ErrMaxAttemptsExceeded", err)
	}
	if !errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Errorf("Do() error should wrap the last failure, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Do() attempts = %d, want 3", attempts)
	}
}

func TestDo_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, fastConfig(3), func() error {
		t.Error("fn should not run with a cancelled context")
		return nil
	})
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Do() error = %v, want ErrContextCancelled", err)
	}
}

func TestIsDependencyUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct sentinel", domain.ErrDependencyUnavailable, true},
		{"wrapped sentinel", fmt.Errorf("search: %w", domain.ErrDependencyUnavailable), true},
		{"other sentinel", domain.ErrNotFound, false},
		{"timeout-looking text is not classified", errors.New("i/o timeout"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDependencyUnavailable(tt.err); got != tt.want {
				t.Errorf("IsDependencyUnavailable() = %v, want %v", got, tt.want)
			}
		})
	}
}
