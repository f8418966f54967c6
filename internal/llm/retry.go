package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"smartqa-backend/internal/shared/telemetry"
)

const defaultRetryDelay = 300 * time.Millisecond

// Retrying retries transient failures of Base a bounded number of times.
type Retrying struct {
	Base     Completer
	Attempts int
	Delay    time.Duration
	Fields   map[string]any
}

// NewRetrying wraps base with one retry after a short delay.
func NewRetrying(base Completer, fields map[string]any) *Retrying {
	return &Retrying{Base: base, Attempts: 2, Delay: defaultRetryDelay, Fields: fields}
}

// Complete calls Base, retrying while the error is transient. A transient
// error that survives every attempt is returned wrapping ErrTransient.
func (r *Retrying) Complete(ctx context.Context, req Request) (Completion, error) {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := r.Base.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		if !IsTransient(err) {
			return Completion{}, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		fields := map[string]any{"attempt": attempt, "error": err.Error()}
		for k, v := range r.Fields {
			fields[k] = v
		}
		telemetry.Warn("llm.retry", fields)
		select {
		case <-time.After(r.Delay * time.Duration(attempt)):
		case <-ctx.Done():
			return Completion{}, fmt.Errorf("%w: %w", ErrTransient, ctx.Err())
		}
	}
	if errors.Is(lastErr, ErrTransient) {
		return Completion{}, lastErr
	}
	return Completion{}, fmt.Errorf("%w: %w", ErrTransient, lastErr)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof")
}
