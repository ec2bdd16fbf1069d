package platform

import "context"

// PeerConnector opens WebRTC peer connections.
type PeerConnector interface {
	NewPeerConnection(cfg PeerConfig) (PeerConnection, error)
}

type PeerConfig struct {
	ICEServers []string
}

// PeerConnection is the subset of RTCPeerConnection used to trigger ICE
// candidate gathering.
type PeerConnection interface {
	CreateDataChannel(label string) error
	// CreateOffer creates a local offer and applies it as the local
	// description, which starts candidate gathering.
	CreateOffer(ctx context.Context) error
	// ICEEvents delivers gathering events in arrival order.
	ICEEvents() <-chan ICEEvent
	Close() error
}

// ICEEvent is one icecandidate or icecandidateerror event. A zero Candidate
// with End set is the end-of-candidates signal.
type ICEEvent struct {
	Candidate string
	End       bool
	Err       error
}
