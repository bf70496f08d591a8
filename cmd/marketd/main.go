package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"

	"nhbmarket/config"
	"nhbmarket/core/state"
	"nhbmarket/gateway"
	"nhbmarket/native/bank"
	"nhbmarket/native/custody"
	"nhbmarket/native/escrow"
	"nhbmarket/native/fees"
	"nhbmarket/native/market"
	"nhbmarket/observability/logging"
	"nhbmarket/observability/metrics"
)

// operatorAddress derives the deterministic address under which the market
// engine acts against the custody registry.
func operatorAddress() [20]byte {
	var addr [20]byte
	digest := ethcrypto.Keccak256([]byte("nhbmarket/engine/operator"))
	copy(addr[:], digest[12:])
	return addr
}

func main() {
	configPath := flag.String("config", "marketd.toml", "path to the marketd configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := logging.Setup("marketd", cfg.Environment)

	db, err := storageOpen(cfg.DataDir)
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	store := state.NewStore(db)
	rail := bank.NewLedger(store)
	operator := operatorAddress()
	registry := custody.NewRegistry(operator)

	registryMetrics := prometheus.NewRegistry()
	collector := metrics.NewCollector(registryMetrics, nil)

	ledger := escrow.NewLedger()
	ledger.SetState(store)
	ledger.SetPaymentRail(rail)
	ledger.SetEmitter(collector)

	feeOwner, err := cfg.FeeOwnerAddress()
	if err != nil {
		logger.Error("fee owner", "err", err)
		os.Exit(1)
	}
	feeRecipient, err := cfg.FeeRecipientAddress()
	if err != nil {
		logger.Error("fee recipient", "err", err)
		os.Exit(1)
	}
	calc, err := fees.NewCalculator(fees.Owner(feeOwner), cfg.FeeBps, feeRecipient)
	if err != nil {
		logger.Error("fee calculator", "err", err)
		os.Exit(1)
	}
	if err := calc.SetState(store); err != nil {
		logger.Error("fee calculator state", "err", err)
		os.Exit(1)
	}
	calc.SetEmitter(collector)

	engine := market.NewEngine()
	engine.SetState(store)
	engine.SetCustody(registry)
	engine.SetLedger(ledger)
	engine.SetCalculator(calc)
	engine.SetPaymentRail(rail)
	engine.SetOperatorAddress(operator)
	engine.SetEmitter(collector)

	server := gateway.NewServer(engine, ledger, calc, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(registryMetrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("marketd listening", "addr", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	logger.Info("marketd stopped")
}
