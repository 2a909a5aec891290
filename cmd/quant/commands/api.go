package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsignals/internal/api"
	"github.com/wonny/eodsignals/internal/api/handlers"
	"github.com/wonny/eodsignals/internal/realtime"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET  /health                     - Health check
  GET  /metrics                    - Prometheus metrics
  GET  /api/signals/{date}         - 시그널 조회
  GET  /api/trades/{date}          - 백테스트 트레이드 조회
  GET  /api/metrics/latest         - 최신 롤링 지표
  GET  /api/calendar/next/{date}   - 다음/이전 거래일
  POST /api/pipeline/signals       - eod_signals 실행
  POST /api/pipeline/backtest      - backtest_daily 실행
  POST /api/backtest/simulate      - 임시 시뮬레이션 (저장 안 함)
  GET  /ws/runs                    - 실행 로그 스트림 (websocket)

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== eodsignals API Server ===")

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	hub := realtime.NewHub(24*time.Hour, d.log)
	defer hub.Close()

	stop, err := startAPIServer(d, hub)
	if err != nil {
		return err
	}

	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	stop()
	return nil
}

// startAPIServer serves the router in the background and returns a graceful stop func
func startAPIServer(d *deps, hub *realtime.Hub) (func(), error) {
	if apiPort != "" {
		d.cfg.Port = apiPort
	}

	routes := api.Routes{
		Data: handlers.NewDataHandler(d.stores.Signals, d.stores.Trades, d.stores.Metrics, d.stores.Holidays, d.log),
		Pipeline: handlers.NewPipelineHandler(
			d.signalPipeline(hub),
			d.backtestPipeline(hub),
			d.log,
		),
		Hub: hub,
	}
	if d.cfg.MetricsEnabled {
		routes.Metrics = d.recorder.Handler()
	}
	router := api.NewRouter(routes, d.log)

	server := api.New(d.cfg, d.log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Surface bind errors before reporting success
	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	case <-time.After(200 * time.Millisecond):
	}

	d.log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", d.cfg.Port)

	return func() {
		d.log.Info("Shutting down server...")

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		hub.Close()
		if err := server.Shutdown(ctx); err != nil {
			d.log.WithError(err).Error("Server shutdown failed")
			return
		}
		d.log.Info("Server stopped")
	}, nil
}
