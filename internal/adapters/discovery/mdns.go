// Package discovery advertises the relay on the local network over mDNS
// so phone viewers can find it without typing an address.
package discovery

import (
	"fmt"
	"net"

	"github.com/pion/mdns/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/ipv4"

	"github.com/avdeyev/gamecast/internal/core"
)

// MDNSAdvertiser answers queries for the configured .local name.
type MDNSAdvertiser struct {
	name string
	conn *mdns.Conn
}

func New(name string) *MDNSAdvertiser {
	return &MDNSAdvertiser{name: name}
}

func (a *MDNSAdvertiser) Advertise(port int) error {
	addr, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		return fmt.Errorf("resolve mdns addr: %w", err)
	}
	l, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("listen mdns: %w", err)
	}
	conn, err := mdns.Server(ipv4.NewPacketConn(l), nil, &mdns.Config{
		LocalNames: []string{a.name},
	})
	if err != nil {
		return fmt.Errorf("mdns server: %w", err)
	}
	a.conn = conn
	log.Info().Str("module", "discovery").Str("name", a.name).Int("port", port).Msg("advertising")
	return nil
}

func (a *MDNSAdvertiser) StopAdvertising() {
	if a.conn == nil {
		return
	}
	if err := a.conn.Close(); err != nil {
		log.Warn().Err(err).Str("module", "discovery").Msg("stop advertising")
	}
	a.conn = nil
}

var _ core.Advertiser = (*MDNSAdvertiser)(nil)
