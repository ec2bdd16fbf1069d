package collector

import (
	"context"
	"errors"

	"github.com/shortontech/botprint/internal/platform"
)

type BatteryResult struct {
	BatterySupported bool     `json:"battery_supported"`
	BatteryCharging  *bool    `json:"battery_charging"`
	BatteryLevel     *float64 `json:"battery_level"`
	BatteryError     string   `json:"battery_error,omitempty"`
}

func Battery(ctx context.Context, caps platform.Capabilities) Outcome[BatteryResult] {
	b, err := caps.Battery()
	if err != nil {
		if errors.Is(err, platform.ErrUnavailable) {
			return Degraded(BatteryResult{}, "getBattery unavailable")
		}
		return Failed(BatteryResult{BatterySupported: true, BatteryError: platform.KindUnavailable}, errorKind(err))
	}
	st, err := b.Status(ctx)
	if err != nil {
		// Any rejection of getBattery is reported the same way.
		return Failed(BatteryResult{BatterySupported: true, BatteryError: platform.KindUnavailable}, errorKind(err))
	}
	return Ok(BatteryResult{
		BatterySupported: true,
		BatteryCharging:  ptr(st.Charging),
		BatteryLevel:     ptr(st.Level),
	})
}
