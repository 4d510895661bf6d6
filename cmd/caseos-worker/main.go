// caseos-worker runs the document-processing worker pool as its own binary,
// sharing the job table with the operator CLI, and serves Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"caseos/internal/bankstmt"
	"caseos/internal/classify"
	"caseos/internal/config"
	"caseos/internal/extract"
	"caseos/internal/gst"
	"caseos/internal/logging"
	"caseos/internal/ocr"
	"caseos/internal/queue"
	"caseos/internal/storage"
	"caseos/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	logger, err := logging.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		return 1
	}
	defer logger.Sync()

	st, err := store.NewStore(cfg.DBConnString)
	if err != nil {
		logger.Error("failed to initialize data store", zap.Error(err))
		return 1
	}
	defer st.Close()

	files, err := storage.NewLocal(cfg.StorageRoot)
	if err != nil {
		logger.Error("failed to initialize storage", zap.Error(err))
		return 1
	}

	metrics := queue.NewMetrics(nil)

	classifier := classify.New(nil)
	extractor := extract.New()
	ocrEngine := ocr.NewHTTPEngine(cfg.OCREndpoint, cfg.BankAnalysisTimeout)
	remote := bankstmt.NewRemoteParser(cfg.BankParserEndpoint, cfg.BankAnalysisTimeout)
	analyzer := bankstmt.NewAnalyzer(remote, nil, bankstmt.Caps{
		MaxBytesPerPDF: cfg.MaxStatementBytes,
		MaxStatements:  cfg.MaxStatementsPerCase,
	}, cfg.BankAnalysisTimeout, logger)
	authority := gst.NewHTTPAuthority(cfg.GSTEndpoint, 10*time.Second)

	processor := queue.NewProcessor(st, files, classifier, ocrEngine, extractor, analyzer, authority, logger)
	pool := queue.NewPool(st, processor, cfg.WorkerCount, cfg.JobPollInterval, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	logger.Info("worker pool starting", zap.Int("workers", cfg.WorkerCount))
	err = pool.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker pool exited", zap.Error(err))
		return 1
	}
	return 0
}
