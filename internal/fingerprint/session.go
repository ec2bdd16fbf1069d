package fingerprint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shortontech/botprint/internal/behavior"
	"github.com/shortontech/botprint/internal/hashing"
	"github.com/shortontech/botprint/internal/platform"
)

// SessionKey is the session storage key holding the session id.
const SessionKey = "fp_session"

// Session is the context of one fingerprinting pass. It is created once per
// page visit and owns the telemetry tracker.
type Session struct {
	FingerprintID   string
	SessionID       string
	NavigationStart time.Time
	ScriptBoot      time.Time

	Caps    platform.Capabilities
	Tracker *behavior.Tracker
	Hasher  *hashing.Hasher
}

// NewSession creates the pass context. The session id is read from session
// storage and generated and stored when absent, so it survives navigations
// for as long as the storage scope does.
func NewSession(ctx context.Context, caps platform.Capabilities, navStart, scriptBoot time.Time, cfg behavior.Config) *Session {
	s := &Session{
		FingerprintID:   NewID(scriptBoot),
		NavigationStart: navStart,
		ScriptBoot:      scriptBoot,
		Caps:            caps,
		Tracker:         behavior.NewTracker(navStart, cfg),
		Hasher:          hashing.New(caps.Digester()),
	}
	if store := caps.Storage(); store != nil {
		if id, ok := store.SessionGet(ctx, SessionKey); ok && id != "" {
			s.SessionID = id
		} else {
			s.SessionID = NewID(scriptBoot)
		}
		store.SessionSet(ctx, SessionKey, s.SessionID)
	} else {
		s.SessionID = NewID(scriptBoot)
	}
	return s
}

// NewID returns an id of the form fp_<unix-ms>_<9 random chars>.
func NewID(now time.Time) string {
	r := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("fp_%d_%s", now.UnixMilli(), r[:9])
}
