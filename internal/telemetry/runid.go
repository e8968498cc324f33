package telemetry

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const runIDKey contextKey = "run-id"

// NewRunID returns a random identifier for one benchmark run
func NewRunID() string { return uuid.New().String() }

// ShortID returns n hex characters of a fresh uuid, used for unique resource names
func ShortID(n int) string {
	s := strings.ReplaceAll(uuid.New().String(), "-", "")
	if n > 0 && n < len(s) {
		return s[:n]
	}
	return s
}

func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

func RunIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}
