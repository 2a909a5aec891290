package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsignals/internal/pipeline"
	"github.com/wonny/eodsignals/internal/realtime"
	"github.com/wonny/eodsignals/internal/scheduler"
	"github.com/wonny/eodsignals/internal/scheduler/jobs"
	"github.com/wonny/eodsignals/pkg/logger"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행
  status  - 작업 실행 상태 조회

Example:
  go run ./cmd/quant scheduler start --with-api
  go run ./cmd/quant scheduler list
  go run ./cmd/quant scheduler run eod_signals`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다 (시장 시간대, 평일).

등록되는 작업:
- eod_signals: 18:30 (조건부 시그널 생성)
- signal_alerts: 18:45 (Telegram 알림)
- backtest_daily: 19:00 (백테스트 + 롤링 지표)
- dq_checks: 19:30 (데이터 품질 검사)
- holiday_sync: 월요일 06:00 (휴장일 동기화, HOLIDAY_SOURCE_URL 설정 시)

--with-api를 주면 같은 프로세스에서 API 서버(/ws/runs 포함)를 함께 실행합니다.
스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "작업 실행 상태 조회",
		RunE:  showStatus,
	}

	// Flags
	schedulerWithAPI bool
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)

	schedulerStartCmd.Flags().BoolVar(&schedulerWithAPI, "with-api", false, "API 서버 함께 실행")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== eodsignals Scheduler ===")

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	hub := realtime.NewHub(24*time.Hour, d.log)
	defer hub.Close()

	sched, err := initScheduler(d, hub)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	var stopAPI func()
	if schedulerWithAPI {
		if stopAPI, err = startAPIServer(d, hub); err != nil {
			sched.Stop()
			return err
		}
	}

	fmt.Println("\n✅ Scheduler started successfully")
	printJobTable(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	if stopAPI != nil {
		stopAPI()
	}
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d, nil)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	printJobTable(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d, nil)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	result, err := sched.RunNow(context.Background(), jobName)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	PrintSuccess(fmt.Sprintf("%s completed in %s (attempts: %d)", jobName, result.Duration, result.Attempts))
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d, nil)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Println("Job Statistics:")
	fmt.Println()

	for _, stat := range sched.JobStats() {
		fmt.Printf("📊 %s\n", stat.JobName)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		fmt.Printf("   Total Runs: %d\n", stat.TotalRuns)
		fmt.Printf("   Success: %d (%.1f%%)\n", stat.SuccessCount, stat.SuccessRate*100)
		fmt.Printf("   Failures: %d\n", stat.FailureCount)

		if stat.LastRun != nil {
			fmt.Printf("   Last Run: %s\n", stat.LastRun.Format("2006-01-02 15:04:05"))
		}

		if stat.NextRun != nil {
			fmt.Printf("   Next Run: %s\n", stat.NextRun.Format("2006-01-02 15:04:05 MST"))
		}

		fmt.Println()
	}

	return nil
}

func printJobTable(sched *scheduler.Scheduler) {
	fmt.Println("\nRegistered jobs:")
	widths := []int{16, 22, 26}
	PrintTableHeader([]string{"Job", "Schedule", "Next run"}, widths)
	for _, stat := range sched.JobStats() {
		next := "-"
		if stat.NextRun != nil {
			next = stat.NextRun.Format("2006-01-02 15:04 MST")
		}
		PrintTableRow([]string{stat.JobName, stat.Schedule, next}, widths)
	}
}

// initScheduler registers every pipeline job; hub may be nil
func initScheduler(d *deps, hub *realtime.Hub) (*scheduler.Scheduler, error) {
	loc, err := d.cfg.Location()
	if err != nil {
		return nil, err
	}

	var sink logger.RunSink
	if hub != nil {
		sink = hub
	}

	sched := scheduler.New(d.log, loc)

	dqFactory := func(ctx context.Context) (pipeline.QualityRunner, error) {
		return d.checker(ctx, sink)
	}

	all := []scheduler.Job{
		jobs.NewEODSignalsJob(d.signalPipeline(sink), d.log),
		jobs.NewSignalAlertsJob(d.alerter(sink), loc),
		jobs.NewBacktestDailyJob(d.backtestPipeline(sink), d.log),
		jobs.NewDQChecksJob(dqFactory, loc),
	}
	if d.cfg.HolidaySourceURL != "" {
		all = append(all, jobs.NewHolidaySyncJob(d.holidayScraper(), d.stores.Holidays, d.log))
	}

	for _, job := range all {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}

	return sched, nil
}
