package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/PratikDhanave/form-relay-service/internal/config"
	"github.com/PratikDhanave/form-relay-service/internal/handlers"
	"github.com/PratikDhanave/form-relay-service/internal/httpserver"
	"github.com/PratikDhanave/form-relay-service/internal/logger"
	"github.com/PratikDhanave/form-relay-service/internal/pages"
	"github.com/PratikDhanave/form-relay-service/internal/relay"
	"github.com/PratikDhanave/form-relay-service/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:           "formrelay",
		Short:         "Accepts form posts over HTTP and appends them to a JSON log via an internal relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		runCommand("serve", "Run the HTTP server and the relay listener in one process", true, true),
		runCommand("web", "Run only the public HTTP server", true, false),
		runCommand("relay", "Run only the internal relay listener", false, true),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("formrelay failed")
	}
}

func runCommand(use, short string, web, relayLoop bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init(cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			if relayLoop {
				if err := startRelay(ctx, g, cfg); err != nil {
					return err
				}
			}
			if web {
				if err := startWeb(ctx, g, cfg); err != nil {
					return err
				}
			}
			return g.Wait()
		},
	}
}

// startRelay boots the append log, the optional Postgres mirror and the relay loop.
func startRelay(ctx context.Context, g *errgroup.Group, cfg config.Config) error {
	opts := []store.Option{store.WithLogger(logger.WithComponent("mirror"))}

	var mirror *store.PostgresMirror
	if cfg.DBURL != "" {
		var err error
		mirror, err = store.NewPostgresMirror(cfg.DBURL)
		if err != nil {
			return err
		}
		if err := mirror.EnsureSchema(ctx); err != nil {
			mirror.Close()
			return err
		}
		opts = append(opts, store.WithMirror(mirror))
		log.Info().Msg("postgres mirror enabled")
	}

	st := store.NewAppendLog(cfg.StorageFile, opts...)
	if err := st.Init(); err != nil {
		return err
	}
	log.Info().Str("file", st.Path()).Msg("append log ready")

	ln, err := relay.Listen(ctx, cfg.RelayAddr())
	if err != nil {
		return err
	}
	srv := relay.NewServer(st, relay.ServerConfig{
		BufferSize:  cfg.RelayBufferSize,
		ReadTimeout: cfg.RelayReadTimeout,
	}, logger.WithComponent("relay"))

	g.Go(func() error {
		err := srv.Serve(ctx, ln)
		// the mirror outlives the last in-flight append
		if mirror != nil {
			mirror.Close()
		}
		return err
	})
	return nil
}

// startWeb boots the public HTTP server.
func startWeb(ctx context.Context, g *errgroup.Group, cfg config.Config) error {
	httpLog := logger.WithComponent("http")

	pg, err := pages.Load(cfg.StaticRoot)
	if err != nil {
		return err
	}
	static, err := handlers.NewStatic(cfg.StaticRoot, pg.Error, httpLog)
	if err != nil {
		return err
	}

	client := relay.NewClient(cfg.RelayAddr(), cfg.RelayDialTimeout, cfg.RelayWriteTimeout)
	httpLog.Info().Str("relay", client.Addr()).Msg("forwarding submissions")

	router := httpserver.NewRouter(httpserver.Deps{
		Relay:       client,
		Pages:       pg,
		Static:      static,
		MaxBodySize: cfg.HTTPMaxBodyBytes,
		Log:         httpLog,
	})
	srv := httpserver.New(cfg.HTTPListenAddr(), router, httpLog)

	g.Go(func() error {
		defer static.Close()
		return srv.Run(ctx)
	})
	return nil
}
