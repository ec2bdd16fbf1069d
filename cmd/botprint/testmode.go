package main

import (
	"context"
	"log"
	"time"

	"github.com/shortontech/botprint/internal/event"
	"github.com/shortontech/botprint/internal/fingerprint"
	"github.com/shortontech/botprint/internal/platform/snapshot"
)

// testVisit is one synthetic page visit replayed in test mode.
type testVisit struct {
	label  string
	scope  string
	report func(navStart time.Time) *snapshot.Report
	ua     string
}

var testVisits = []testVisit{
	{label: "human", scope: "test-human", report: snapshot.Human, ua: "test-mode/human"},
	{label: "bot", scope: "test-bot", report: snapshot.Bot, ua: "test-mode/bot"},
	// Same scope as the first visit, so it reuses the stored session id.
	{label: "human (return visit)", scope: "test-human", report: snapshot.Human, ua: "test-mode/human"},
}

// generateTestEvents replays the synthetic visits through agg and wraps each
// record in an event. store may be nil.
func generateTestEvents(ctx context.Context, agg *fingerprint.Aggregator, store snapshot.SessionStore) []event.Event {
	now := time.Now()
	events := make([]event.Event, 0, len(testVisits))
	for i, v := range testVisits {
		rep := v.report(now.Add(-time.Duration(len(testVisits)-i) * time.Minute))
		caps := snapshot.New(rep, v.scope, store)
		sess := fingerprint.NewSession(ctx, caps, rep.NavigationStartTime(), rep.ScriptBootTime(), agg.Config().Behavior)
		caps.Replay(sess.Tracker)
		rec := agg.Collect(ctx, sess)

		e := event.New(rec, now)
		e.Server.UA = v.ua
		e.Server.ReceivedAt = e.TS
		events = append(events, e)
	}
	return events
}

func runTestMode(ctx context.Context, agg *fingerprint.Aggregator, store snapshot.SessionStore, emit func(event.Event)) {
	log.Println("test mode: replaying synthetic visits")

	events := generateTestEvents(ctx, agg, store)
	for i, e := range events {
		log.Printf("test mode: event %d/%d %s score=%.3f bot=%t reasons=%v",
			i+1, len(events), testVisits[i].label, e.Score.BotScore, e.Score.IsBot, e.Score.SuspicionReasons)
		emit(e)

		if i < len(events)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
	log.Println("test mode: done")
}
