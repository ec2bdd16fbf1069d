package collector

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/shortontech/botprint/internal/platform"
)

type MediaDevicesResult struct {
	MediaDevicesSupported      bool     `json:"media_devices_supported"`
	MediaDevicesPermission     *bool    `json:"media_devices_permission"`
	MediaDevicesPermissionNote *string  `json:"media_devices_permission_note"`
	MediaDevices               []string `json:"media_devices"`
	MediaDevicesCount          *int     `json:"media_devices_count"`
	HasCamera                  *bool    `json:"has_camera"`
	HasMicrophone              *bool    `json:"has_microphone"`
	HasSpeaker                 *bool    `json:"has_speaker"`
	MediaDevicesError          string   `json:"media_devices_error,omitempty"`
}

const (
	noteMediaUnsupported = "MediaDevices API not supported"
	noteMediaNoLabels    = "Enumerated device kinds without label permission"
	noteMediaDenied      = "Permission denied while requesting devices"
)

// MediaDevices enumerates device kinds. A labelled device means the page
// already holds a capture permission.
func MediaDevices(ctx context.Context, caps platform.Capabilities) Outcome[MediaDevicesResult] {
	md, err := caps.MediaDevices()
	if err != nil {
		if errors.Is(err, platform.ErrUnavailable) {
			return Degraded(MediaDevicesResult{MediaDevicesPermissionNote: ptr(noteMediaUnsupported)}, "mediaDevices unavailable")
		}
		return mediaDevicesFailed(err)
	}

	devices, err := md.EnumerateDevices(ctx)
	if err != nil {
		return mediaDevicesFailed(err)
	}

	kinds := make([]string, 0, len(devices))
	granted := false
	for _, d := range devices {
		kinds = append(kinds, d.Kind)
		if strings.TrimSpace(d.Label) != "" {
			granted = true
		}
	}

	res := MediaDevicesResult{
		MediaDevicesSupported:  true,
		MediaDevicesPermission: ptr(granted),
		MediaDevices:           kinds,
		MediaDevicesCount:      ptr(len(devices)),
		HasCamera:              ptr(slices.Contains(kinds, "videoinput")),
		HasMicrophone:          ptr(slices.Contains(kinds, "audioinput")),
	}
	if slices.Contains(kinds, "audiooutput") {
		res.HasSpeaker = ptr(true)
	}
	if !granted && len(kinds) > 0 {
		res.MediaDevicesPermissionNote = ptr(noteMediaNoLabels)
	}
	return Ok(res)
}

func mediaDevicesFailed(err error) Outcome[MediaDevicesResult] {
	res := MediaDevicesResult{
		MediaDevicesSupported: true,
		MediaDevices:          []string{},
		MediaDevicesCount:     ptr(0),
		MediaDevicesError:     platform.ErrorName(err),
	}
	if res.MediaDevicesError == "" {
		res.MediaDevicesError = platform.KindUnknown
	}
	if platform.IsPermissionDenied(err) {
		res.MediaDevicesPermission = ptr(false)
		res.MediaDevicesPermissionNote = ptr(noteMediaDenied)
	}
	return Failed(res, res.MediaDevicesError)
}

func ptr[T any](v T) *T { return &v }
