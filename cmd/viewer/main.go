package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/gamecast/internal/adapters/rtc"
	"github.com/avdeyev/gamecast/internal/domain"
	"github.com/avdeyev/gamecast/internal/viewer"
)

func main() {
	relay := flag.String("relay", "ws://localhost:8080", "relay base url")
	session := flag.String("session", "", "session id to join (required)")
	stun := flag.String("stun", "", "comma separated stun urls (optional)")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *session == "" {
		log.Fatal().Msg("-session is required")
	}

	var stunServers []string
	if *stun != "" {
		stunServers = strings.Split(*stun, ",")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := viewer.NewClient(*relay, domain.SessionID(*session), stunServers)
	c.OnStream(func(s *rtc.MediaStream) {
		log.Info().Str("stream", s.ID()).Int("tracks", len(s.Tracks())).Msg("receiving media")
	})

	if err := c.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("viewer stopped")
	}
	log.Info().Msg("viewer stopped")
}
