package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/ledger"
	"github.com/blackwell-systems/tapkeeper/internal/lint"
	"github.com/blackwell-systems/tapkeeper/internal/logging"
	"github.com/blackwell-systems/tapkeeper/internal/server"
	"github.com/blackwell-systems/tapkeeper/internal/tap"
)

var (
	serveAddr string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only JSON index of the tap",
		Long: `Serve the tap's formulae, lint report and recorded releases over HTTP.

Routes:
  GET /api/formulae                   every formula
  GET /api/formulae/{name}            one formula
  GET /api/formulae/{name}/releases   ledger history (when a ledger exists)
  GET /api/lint                       current lint report
  GET /healthz                        liveness
  GET /metrics                        Prometheus metrics

The index is reloaded whenever a formula file changes.`,
		Example: `  tapkeeper serve
  tapkeeper serve --addr :8080 --tap outlyerapp/outlyer`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: serve.addr from config, 127.0.0.1:8742)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir, err := resolveTapDir(cfg.Tap)
	if err != nil {
		return err
	}

	logger := logging.For("server")
	srvCfg := server.Config{
		TapDir: dir,
		Linter: lint.New(logging.For("lint")),
		Order: func(ctx context.Context, t *tap.Tap) (map[string][]*formula.Descriptor, error) {
			order, source, err := publicationOrder(ctx, t, true, nil)
			logger.Debug().Str("source", source).Msg("publication order")
			return order, err
		},
		Logger: logger,
	}

	led, err := openLedger(cfg, false)
	switch {
	case errors.Is(err, ledger.ErrNotInitialized):
		logger.Info().Str("db", cfg.Database).Msg("no ledger; release history disabled")
	case err != nil:
		return err
	default:
		defer led.Close()
		srvCfg.Ledger = led
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Serve.Addr
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s (press Ctrl+C to stop)\n", dir, addr)

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Serve(ctx, addr)
}
