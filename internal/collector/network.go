package collector

import (
	"errors"

	"github.com/shortontech/botprint/internal/platform"
)

type NetworkResult struct {
	NetworkInfoSupported bool     `json:"network_info_supported"`
	NetworkEffectiveType *string  `json:"network_effective_type"`
	NetworkDownlink      *float64 `json:"network_downlink"`
	NetworkRTT           *float64 `json:"network_rtt"`
	NetworkSaveData      *bool    `json:"network_save_data"`
	ConnectionType       *string  `json:"connection_type"`
}

// Network reads navigator.connection. Attributes the browser does not expose
// stay null.
func Network(caps platform.Capabilities) Outcome[NetworkResult] {
	conn, err := caps.Connection()
	if err != nil {
		if errors.Is(err, platform.ErrUnavailable) {
			return Degraded(NetworkResult{}, "navigator.connection unavailable")
		}
		return Failed(NetworkResult{}, errorKind(err))
	}
	return Ok(NetworkResult{
		NetworkInfoSupported: true,
		NetworkEffectiveType: nonEmpty(conn.EffectiveType),
		NetworkDownlink:      conn.Downlink,
		NetworkRTT:           conn.RTT,
		NetworkSaveData:      conn.SaveData,
		ConnectionType:       nonEmpty(conn.Type),
	})
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
