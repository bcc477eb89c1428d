package rtc

import "github.com/pion/webrtc/v4"

// Configuration builds the peer-connection config from configured STUN
// URLs, falling back to a public server.
func Configuration(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
}
