// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"github.com/pion/webrtc/v4"
)

// ICEConfig holds the ICE servers used for candidate gathering. Empty
// Servers means host candidates only, which is enough on one machine or
// one LAN.
type ICEConfig struct {
	Servers []webrtc.ICEServer
}

// NewPeerConnection creates a pion PeerConnection with the given ICE
// config. Loopback candidates are included so client and server on the
// same machine (and tests) can connect.
func NewPeerConnection(config ICEConfig) (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers: config.Servers,
	})
}

// VoiceConnectionFactory returns a Mesh connection factory that creates
// pion PeerConnections with config.
func VoiceConnectionFactory(config ICEConfig) func() (VoiceConnection, error) {
	return func() (VoiceConnection, error) {
		connection, err := NewPeerConnection(config)
		if err != nil {
			return nil, err
		}
		return connection, nil
	}
}
