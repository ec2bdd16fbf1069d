// Package fingerprint runs a full fingerprinting pass: it fans the
// collectors out in two waves, summarizes the behavior telemetry, merges
// everything into one flat Record and scores it.
package fingerprint

import (
	"context"
	"sync"
	"time"

	"github.com/shortontech/botprint/internal/behavior"
	"github.com/shortontech/botprint/internal/collector"
	"github.com/shortontech/botprint/internal/score"
)

// Collector names used in Record.CollectorStatus and in metrics.
const (
	NameUserAgent    = "user_agent"
	NameCanvas       = "canvas"
	NameWebGL        = "webgl"
	NameFonts        = "fonts"
	NamePlugins      = "plugins"
	NameAutomation   = "automation"
	NameTikTok       = "tiktok"
	NamePerformance  = "performance"
	NameNetwork      = "network"
	NameContext      = "context"
	NameBehavior     = "behavior"
	NameAudio        = "audio"
	NameMediaDevices = "media_devices"
	NameBattery      = "battery"
	NameWebRTC       = "webrtc"
)

type Config struct {
	Behavior       behavior.Config
	WebRTCDeadline time.Duration
}

func DefaultConfig() Config {
	return Config{Behavior: behavior.DefaultConfig(), WebRTCDeadline: collector.DefaultWebRTCDeadline}
}

// OutcomeFunc observes every collector outcome, typically for metrics.
type OutcomeFunc func(name string, status collector.Status, reason string)

type Aggregator struct {
	cfg       Config
	engine    *score.Engine
	onOutcome OutcomeFunc
}

type Option func(*Aggregator)

// WithOutcomeObserver registers fn to be called once per collector outcome.
// It may be called from several goroutines at once.
func WithOutcomeObserver(fn OutcomeFunc) Option {
	return func(a *Aggregator) { a.onOutcome = fn }
}

func NewAggregator(cfg Config, engine *score.Engine, opts ...Option) *Aggregator {
	if engine == nil {
		engine = score.NewDefault()
	}
	if cfg.WebRTCDeadline <= 0 {
		cfg.WebRTCDeadline = collector.DefaultWebRTCDeadline
	}
	a := &Aggregator{cfg: cfg, engine: engine}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) Config() Config { return a.cfg }

// Observe waits until the observation window has elapsed since navigation
// start and then collects. It returns early with ctx's error.
func (a *Aggregator) Observe(ctx context.Context, sess *Session) (*Record, error) {
	wait := time.Until(sess.NavigationStart.Add(a.cfg.Behavior.Window))
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return a.Collect(ctx, sess), nil
}

// Collect runs every collector once and returns the scored record. It
// cannot fail: every collector is failure isolated and a panicking one is
// recorded as failed.
func (a *Aggregator) Collect(ctx context.Context, sess *Session) *Record {
	caps, h := sess.Caps, sess.Hasher
	env := caps.Environment()
	status := newStatusSet(a.onOutcome)

	ua := runInline(status, NameUserAgent, func() collector.Outcome[collector.UserAgentResult] {
		return collector.Ok(collector.ParseUserAgent(env.Navigator.UserAgent))
	})

	var (
		wg      sync.WaitGroup
		canvas  collector.Outcome[collector.CanvasResult]
		webgl   collector.Outcome[collector.WebGLResult]
		fonts   collector.Outcome[collector.FontsResult]
		plugins collector.Outcome[collector.PluginsResult]
	)
	spawn(&wg, NameCanvas, &canvas, func() collector.Outcome[collector.CanvasResult] {
		return collector.Canvas(ctx, caps, h)
	})
	spawn(&wg, NameWebGL, &webgl, func() collector.Outcome[collector.WebGLResult] {
		return collector.WebGL(ctx, caps, h)
	})
	spawn(&wg, NameFonts, &fonts, func() collector.Outcome[collector.FontsResult] {
		return collector.Fonts(ctx, caps, h)
	})
	spawn(&wg, NamePlugins, &plugins, func() collector.Outcome[collector.PluginsResult] {
		return collector.Plugins(ctx, caps, h, ua)
	})
	wg.Wait()
	record(status, NameCanvas, canvas)
	record(status, NameWebGL, webgl)
	record(status, NameFonts, fonts)
	record(status, NamePlugins, plugins)

	automation := runInline(status, NameAutomation, func() collector.Outcome[collector.AutomationResult] {
		raw, _ := caps.Plugins()
		return collector.Ok(collector.Automation(env, len(raw)))
	})
	tiktok := runInline(status, NameTikTok, func() collector.Outcome[collector.TikTokResult] {
		return collector.Ok(collector.TikTok(env))
	})
	perfOut := collector.Guard(NamePerformance, zero[collector.PerformanceResult], func() collector.Outcome[collector.PerformanceResult] {
		return collector.Performance(caps)
	})
	record(status, NamePerformance, perfOut)
	network := runInline(status, NameNetwork, func() collector.Outcome[collector.NetworkResult] {
		return collector.Network(caps)
	})
	page := runInline(status, NameContext, func() collector.Outcome[collector.PageContext] {
		return collector.Ok(collector.Context(env, caps.Storage()))
	})
	summary := runInline(status, NameBehavior, func() collector.Outcome[behavior.Result] {
		return collector.Ok(sess.Tracker.Summarize())
	})

	var (
		audio   collector.Outcome[collector.AudioResult]
		media   collector.Outcome[collector.MediaDevicesResult]
		battery collector.Outcome[collector.BatteryResult]
		webrtc  collector.Outcome[collector.WebRTCResult]
	)
	spawn(&wg, NameAudio, &audio, func() collector.Outcome[collector.AudioResult] {
		return collector.Audio(ctx, caps, h)
	})
	spawn(&wg, NameMediaDevices, &media, func() collector.Outcome[collector.MediaDevicesResult] {
		return collector.MediaDevices(ctx, caps)
	})
	spawn(&wg, NameBattery, &battery, func() collector.Outcome[collector.BatteryResult] {
		return collector.Battery(ctx, caps)
	})
	spawn(&wg, NameWebRTC, &webrtc, func() collector.Outcome[collector.WebRTCResult] {
		rtcCtx, cancel := context.WithTimeout(ctx, a.cfg.WebRTCDeadline)
		defer cancel()
		return collector.WebRTC(rtcCtx, caps)
	})
	wg.Wait()
	record(status, NameAudio, audio)
	record(status, NameMediaDevices, media)
	record(status, NameBattery, battery)
	record(status, NameWebRTC, webrtc)

	rec := &Record{
		FingerprintID:      sess.FingerprintID,
		SessionID:          sess.SessionID,
		PageContext:        page,
		CanvasResult:       canvas.Data,
		WebGLResult:        webgl.Data,
		AudioResult:        audio.Data,
		FontsResult:        fonts.Data,
		PluginsResult:      plugins.Data,
		AutomationResult:   automation,
		TikTokResult:       tiktok,
		UserAgentResult:    ua,
		PerformanceResult:  perfOut.Data,
		NetworkResult:      network,
		MediaDevicesResult: media.Data,
		BatteryResult:      battery.Data,
		WebRTCResult:       webrtc.Data,
		Behavior:           newBehavior(summary),
		CollectorStatus:    status.m,
	}
	rec.PageLoadTime = a.pageLoadTime(sess, perfOut)
	rec.TimeToInteract = a.timeToInteract(sess, summary, rec.PageLoadTime)
	rec.Result = a.engine.Evaluate(rec.ScoreInput())
	return rec
}

func (a *Aggregator) pageLoadTime(sess *Session, perf collector.Outcome[collector.PerformanceResult]) int64 {
	if perf.Status == collector.StatusOK {
		return perf.Data.PageLoad
	}
	return max(0, sess.ScriptBoot.Sub(sess.NavigationStart).Milliseconds())
}

func (a *Aggregator) timeToInteract(sess *Session, res behavior.Result, pageLoad int64) int64 {
	if res.Started {
		return max(0, res.FirstAt.Sub(sess.NavigationStart).Round(time.Millisecond).Milliseconds())
	}
	return a.cfg.Behavior.Window.Milliseconds() + pageLoad
}

// statusSet collects outcome statuses. Writes happen only from the
// aggregating goroutine, after each wave has joined.
type statusSet struct {
	m         map[string]collector.Status
	onOutcome OutcomeFunc
}

func newStatusSet(fn OutcomeFunc) *statusSet {
	return &statusSet{m: make(map[string]collector.Status), onOutcome: fn}
}

func record[T any](s *statusSet, name string, out collector.Outcome[T]) {
	s.m[name] = out.Status
	if s.onOutcome != nil {
		s.onOutcome(name, out.Status, out.Reason)
	}
}

// spawn runs fn on its own goroutine under a panic guard and stores the
// outcome in slot, which no other goroutine touches.
func spawn[T any](wg *sync.WaitGroup, name string, slot *collector.Outcome[T], fn func() collector.Outcome[T]) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		*slot = collector.Guard(name, zero[T], fn)
	}()
}

func runInline[T any](s *statusSet, name string, fn func() collector.Outcome[T]) T {
	out := collector.Guard(name, zero[T], fn)
	record(s, name, out)
	return out.Data
}

func zero[T any]() T {
	var z T
	return z
}
