package producer

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/gamecast/internal/domain"
)

// RTPEngine bridges an external encoder to the agent: it listens on a
// local UDP port for H264 RTP packets (e.g. from ffmpeg or gstreamer)
// and republishes them on a local track shared by all viewer peers.
// Input events are logged only; with an external engine the relay
// injects input through the virtual gamepad instead.
type RTPEngine struct {
	track *webrtc.TrackLocalStaticRTP
	addr  string
}

func NewRTPEngine(addr string) (*RTPEngine, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		"video", "gamecast",
	)
	if err != nil {
		return nil, fmt.Errorf("create track: %w", err)
	}
	return &RTPEngine{track: track, addr: addr}, nil
}

func (e *RTPEngine) VideoTrack() *webrtc.TrackLocalStaticRTP { return e.track }

// Run reads RTP from the UDP socket until ctx is done.
func (e *RTPEngine) Run(ctx context.Context) error {
	laddr, err := net.ResolveUDPAddr("udp", e.addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", e.addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", e.addr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	log.Info().Str("module", "engine").Str("addr", e.addr).Msg("waiting for rtp")

	buf := make([]byte, 1500)
	pkt := &rtp.Packet{}
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read rtp: %w", err)
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			log.Debug().Err(err).Str("module", "engine").Msg("bad rtp packet")
			continue
		}
		if err := e.track.WriteRTP(pkt); err != nil {
			log.Debug().Err(err).Str("module", "engine").Msg("write rtp")
		}
	}
}

func (e *RTPEngine) HandleButton(ev domain.ButtonEvent) {
	log.Debug().Str("module", "engine").Str("button", string(ev.Button)).Bool("pressed", ev.Pressed).Msg("input")
}

func (e *RTPEngine) HandleAnalog(ev domain.AnalogEvent) {
	log.Debug().Str("module", "engine").Str("stick", string(ev.Stick)).
		Float64("x", ev.X).Float64("y", ev.Y).Msg("analog input")
}
