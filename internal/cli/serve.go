package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"medeasy/rx/internal/api"
	"medeasy/rx/internal/events"
	"medeasy/rx/internal/fulfillment"
	"medeasy/rx/internal/interaction"
	"medeasy/rx/internal/inventory"
	"medeasy/rx/internal/ledger"
	"medeasy/rx/internal/observability"
	"medeasy/rx/internal/seed"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var seedCatalog bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, seedCatalog)
		},
	}
	cmd.Flags().BoolVar(&seedCatalog, "seed", false, "load the medicine catalog on start")
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, seedCatalog bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	logger, db, err := opts.open()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer db.Close()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	if seedCatalog {
		if _, err := seed.LoadMedicines(ctx, db, cfg.MedicineCSV, logger); err != nil {
			logger.Warn("medicine catalog not loaded", zap.Error(err))
		}
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		logger.Info("publishing events to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic))
	}
	defer publisher.Close()

	led := ledger.New(db)
	inv := inventory.New(db, led, logger)
	checker := interaction.NewSQLChecker(db)
	engine := fulfillment.New(db, inv, led, checker, logger, fulfillment.WithPublisher(publisher))
	handler := api.New(db, engine, inv, led, checker, cfg.Secret, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("MedEasy Rx server starting", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
