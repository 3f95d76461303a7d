// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/netplay/lib/config"
	"github.com/bureau-foundation/netplay/peer"
)

// PeerFactory creates the peer connection for one negotiation of the
// primary data channel. Every Connect that negotiates calls it once.
type PeerFactory func() (*webrtc.PeerConnection, error)

// ICEConfigFromServer converts the server section of the configuration
// into an ICE config. With no ICE URLs configured the result has no
// servers (host candidates only), which is sufficient for same-machine
// and same-LAN play.
func ICEConfigFromServer(server config.ServerConfig) peer.ICEConfig {
	if len(server.ICEURLs) == 0 {
		return peer.ICEConfig{}
	}
	return peer.ICEConfig{
		Servers: []webrtc.ICEServer{
			{
				URLs:       server.ICEURLs,
				Username:   server.ICEUsername,
				Credential: server.ICECredential,
			},
		},
	}
}

// DefaultPeerFactory returns a PeerFactory creating pion connections
// with iceConfig and loopback candidates enabled.
func DefaultPeerFactory(iceConfig peer.ICEConfig) PeerFactory {
	return func() (*webrtc.PeerConnection, error) {
		return peer.NewPeerConnection(iceConfig)
	}
}
