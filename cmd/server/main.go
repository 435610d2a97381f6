package main

import (
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/calmgrid/tictactoe/internal/app"
	"github.com/calmgrid/tictactoe/internal/config"
	"github.com/calmgrid/tictactoe/internal/web"
)

func main() {
	cfg := &config.Config{}
	if err := cfg.Load(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("failed to parse flags")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	svc := app.NewService(cfg.AIDepth)
	handler := web.NewServer(svc)

	log.Info().Str("addr", cfg.Addr).Int("depth", cfg.AIDepth).Msg("starting server")
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
