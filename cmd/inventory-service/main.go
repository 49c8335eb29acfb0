package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/bookstore/inventory-service-go/internal/api"
	"github.com/bookstore/inventory-service-go/internal/application"
	"github.com/bookstore/inventory-service-go/internal/config"
	"github.com/bookstore/inventory-service-go/internal/domain"
	"github.com/bookstore/inventory-service-go/internal/infrastructure/db"
	"github.com/bookstore/inventory-service-go/internal/infrastructure/memory"
	"github.com/bookstore/inventory-service-go/internal/infrastructure/messaging"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg := config.Load()
	log.Info().
		Str("port", cfg.HttpPort).
		Str("store", cfg.Store).
		Strs("brokers", cfg.KafkaBrokers).
		Msg("starting inventory service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger, cleanup, err := openLedger(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open stock ledger")
	}
	defer cleanup()

	if cfg.SeedOnStart {
		if err := seedPlaceholders(ctx, ledger, cfg.SeedQuantity); err != nil {
			log.Fatal().Err(err).Msg("failed to seed inventory")
		}
		log.Info().Int("quantity", cfg.SeedQuantity).Msg("seeded placeholder inventory")
	}

	gateway := messaging.NewKafkaGateway(messaging.KafkaOptions{
		Brokers:    cfg.KafkaBrokers,
		GroupID:    cfg.KafkaGroupID,
		OrderTopic: cfg.OrderTopic,
		StockTopic: cfg.StockTopic,
	})
	defer gateway.Close()

	processor := application.NewDeductionProcessor(ledger, gateway, cfg.StockTopic, log.Logger)
	processorDone := make(chan struct{})
	go func() {
		defer close(processorDone)
		if err := processor.Run(ctx); err != nil {
			log.Error().Err(err).Msg("deduction processor exited with error")
		}
	}()

	reserveSvc := application.NewReserveStockService(ledger, log.Logger)

	mux := http.NewServeMux()
	apiServer := api.NewServer(ledger, reserveSvc, log.Logger)
	apiServer.RegisterRoutes(mux)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.HttpPort,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("http listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down inventory service")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.ShutdownTimeoutSec)*time.Second,
	)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}

	// The consume loop exits between events, never mid-item.
	cancel()
	select {
	case <-processorDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("deduction processor did not stop in time")
	}
}

func openLedger(ctx context.Context, cfg config.Config) (domain.StockLedger, func(), error) {
	switch cfg.Store {
	case "memory":
		return memory.NewStockLedger(), func() {}, nil
	case "postgres":
		dbConn, err := sql.Open("pgx", cfg.PgDsn)
		if err != nil {
			return nil, nil, err
		}
		if err := dbConn.PingContext(ctx); err != nil {
			dbConn.Close()
			return nil, nil, err
		}
		ledger := db.NewPgStockLedger(dbConn)
		if err := ledger.Migrate(ctx); err != nil {
			dbConn.Close()
			return nil, nil, err
		}
		return ledger, func() { dbConn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// seedPlaceholders loads the fixed local-development book ids. Real inventory
// is seeded by a bootstrap job, not by this service.
func seedPlaceholders(ctx context.Context, ledger domain.StockLedger, qty int) error {
	for i := 1; i <= 10; i++ {
		bookID := uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", i))
		if err := ledger.Seed(ctx, bookID, qty); err != nil {
			return err
		}
	}
	return nil
}
