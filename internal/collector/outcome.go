// Package collector holds the fingerprint signal collectors. Every collector
// returns a fixed-shape result wrapped in an Outcome and never fails: an
// absent capability yields Degraded defaults, a failing one yields Failed
// defaults carrying a stable error kind.
package collector

import (
	"log"

	"github.com/shortontech/botprint/internal/platform"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Outcome is the tagged result of one collector run.
type Outcome[T any] struct {
	Data   T
	Status Status
	// Reason is the degradation reason or the failure's error kind.
	Reason string
}

func Ok[T any](data T) Outcome[T] {
	return Outcome[T]{Data: data, Status: StatusOK}
}

func Degraded[T any](data T, reason string) Outcome[T] {
	return Outcome[T]{Data: data, Status: StatusDegraded, Reason: reason}
}

func Failed[T any](data T, kind string) Outcome[T] {
	return Outcome[T]{Data: data, Status: StatusFailed, Reason: kind}
}

// Guard runs fn and converts a panic into a Failed outcome built from
// fallback. name is only used for logging.
func Guard[T any](name string, fallback func() T, fn func() Outcome[T]) (out Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("collector: %s panicked: %v", name, r)
			out = Failed(fallback(), platform.KindPanic)
		}
	}()
	return fn()
}

// errorKind is the value written to a collector's *_error field: the DOM
// exception name when the platform raised one, else the stable kind.
func errorKind(err error) string {
	if name := platform.ErrorName(err); name != "" {
		return name
	}
	return platform.Kind(err)
}
