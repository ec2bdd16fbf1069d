// Package sink delivers fingerprint events to their destinations.
package sink

import (
	"context"

	"github.com/shortontech/botprint/internal/event"
)

type Sink interface {
	Start(ctx context.Context) error
	Enqueue(e event.Event) error
	Close() error
	Name() string // Returns the sink name for metrics and logging
}
