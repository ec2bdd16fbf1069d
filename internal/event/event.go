// Package event defines the envelope a scored fingerprint is emitted in.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/shortontech/botprint/internal/fingerprint"
	"github.com/shortontech/botprint/internal/score"
)

// TypeFingerprint is the only event type the collector emits today.
const TypeFingerprint = "fingerprint"

// Envelope around one fingerprint record. Optional fields are omitted when empty.
type Event struct {
	EventID string `json:"event_id,omitempty"`
	TS      string `json:"ts,omitempty"`   // ISO8601
	Type    string `json:"type,omitempty"` // "fingerprint"

	FingerprintID string `json:"fingerprint_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`

	Attribution Attribution         `json:"attribution,omitempty"`
	Server      ServerMeta          `json:"server,omitempty"`
	Fingerprint *fingerprint.Record `json:"fingerprint_data,omitempty"`
	Score       score.Result        `json:"score"`
}

// --- Attribution ---

type Attribution struct {
	UTM      UTMInfo           `json:"utm,omitempty"`
	ClickIDs map[string]string `json:"click_ids,omitempty"` // gclid, fbclid, ttclid, msclkid, etc.
}

type UTMInfo struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
	ID       string `json:"id,omitempty"`
}

// --- Server enrich ---

type ServerMeta struct {
	IP       string `json:"ip_hash,omitempty"` // keyed hash of the client IP (if enabled)
	UA       string `json:"ua,omitempty"`
	Origin   string `json:"origin,omitempty"`
	Referrer string `json:"referrer,omitempty"`
	// ReceivedAt is when the report reached the server, as opposed to the
	// record's own navigation clock.
	ReceivedAt string `json:"received_at,omitempty"`
}

// New wraps rec in a fingerprint event with a fresh event id.
func New(rec *fingerprint.Record, now time.Time) Event {
	e := Event{
		EventID: uuid.NewString(),
		TS:      now.UTC().Format(time.RFC3339Nano),
		Type:    TypeFingerprint,
	}
	if rec != nil {
		e.FingerprintID = rec.FingerprintID
		e.SessionID = rec.SessionID
		e.Fingerprint = rec
		e.Score = rec.Result
		e.Attribution = attributionFrom(rec.URLParameters)
	}
	return e
}
