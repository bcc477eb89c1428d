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
	"golang.org/x/sync/errgroup"

	"github.com/avdeyev/gamecast/internal/domain"
	"github.com/avdeyev/gamecast/internal/producer"
)

func main() {
	relay := flag.String("relay", "ws://localhost:8080", "relay base url")
	session := flag.String("session", "", "session id to register for (required)")
	rtpAddr := flag.String("rtp", "127.0.0.1:5004", "udp address to receive h264 rtp on")
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

	engine, err := producer.NewRTPEngine(*rtpAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("create engine")
	}
	agent := producer.NewAgent(*relay, domain.SessionID(*session), engine, stunServers)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return agent.Run(ctx) })

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("producer stopped")
	}
	log.Info().Msg("producer stopped")
}
