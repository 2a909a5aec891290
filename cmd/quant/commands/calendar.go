package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsignals/internal/contracts"
)

// calendarCmd represents the calendar command
var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "거래일 캘린더",
	Long: `주말과 거래소 휴장일을 제외한 거래일 캘린더를 조회/관리합니다.

Subcommands:
  check  - 거래일 여부
  next   - 다음 거래일
  prev   - 이전 거래일
  add    - 휴장일 추가
  list   - 휴장일 목록
  sync   - 휴장일 원천 동기화

Example:
  go run ./cmd/quant calendar check 2024-12-25
  go run ./cmd/quant calendar next 2024-12-24 --days 3
  go run ./cmd/quant calendar add 2024-11-20 --name "Consciência Negra"`,
}

var (
	calendarCheckCmd = &cobra.Command{
		Use:   "check [date]",
		Short: "거래일 여부 확인",
		Args:  cobra.ExactArgs(1),
		RunE:  runCalendarCheck,
	}

	calendarNextCmd = &cobra.Command{
		Use:   "next [date]",
		Short: "다음 거래일",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return runCalendarStep(args[0], calendarDays) },
	}

	calendarPrevCmd = &cobra.Command{
		Use:   "prev [date]",
		Short: "이전 거래일",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return runCalendarStep(args[0], -calendarDays) },
	}

	calendarAddCmd = &cobra.Command{
		Use:   "add [date]",
		Short: "휴장일 추가 (upsert)",
		Args:  cobra.ExactArgs(1),
		RunE:  runCalendarAdd,
	}

	calendarListCmd = &cobra.Command{
		Use:   "list",
		Short: "휴장일 목록",
		RunE:  runCalendarList,
	}

	calendarSyncCmd = &cobra.Command{
		Use:   "sync",
		Short: "HOLIDAY_SOURCE_URL에서 휴장일 동기화",
		RunE:  runCalendarSync,
	}

	// Flags
	calendarDays int
	calendarName string
	calendarYear int
)

func init() {
	rootCmd.AddCommand(calendarCmd)
	calendarCmd.AddCommand(calendarCheckCmd, calendarNextCmd, calendarPrevCmd, calendarAddCmd, calendarListCmd, calendarSyncCmd)

	calendarNextCmd.Flags().IntVar(&calendarDays, "days", 1, "거래일 수")
	calendarPrevCmd.Flags().IntVar(&calendarDays, "days", 1, "거래일 수")
	calendarAddCmd.Flags().StringVar(&calendarName, "name", "", "휴장일 이름")
	calendarListCmd.Flags().IntVar(&calendarYear, "year", 0, "연도 (기본: 전체)")
}

func runCalendarCheck(cmd *cobra.Command, args []string) error {
	date, err := contracts.ParseDay(args[0])
	if err != nil {
		return err
	}

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	cal, err := d.calendar(context.Background())
	if err != nil {
		return err
	}

	switch {
	case cal.IsTradingDay(date):
		PrintSuccess(fmt.Sprintf("%s is a trading day", args[0]))
	case cal.IsHoliday(date):
		PrintInfo(fmt.Sprintf("%s is an exchange holiday", args[0]))
	default:
		PrintInfo(fmt.Sprintf("%s is a weekend", args[0]))
	}
	return nil
}

func runCalendarStep(value string, delta int) error {
	date, err := contracts.ParseDay(value)
	if err != nil {
		return err
	}
	if delta == 0 {
		return fmt.Errorf("--days must not be zero")
	}

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	cal, err := d.calendar(context.Background())
	if err != nil {
		return err
	}

	day, err := cal.AddTradingDays(date, delta)
	if err != nil {
		return err
	}
	fmt.Println(day.Format(contracts.DateLayout))
	return nil
}

func runCalendarAdd(cmd *cobra.Command, args []string) error {
	date, err := contracts.ParseDay(args[0])
	if err != nil {
		return err
	}

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	holiday := contracts.Holiday{Date: date, Name: calendarName}
	if err := d.stores.Holidays.UpsertHolidays(context.Background(), []contracts.Holiday{holiday}); err != nil {
		return fmt.Errorf("upsert holiday: %w", err)
	}
	PrintSuccess(fmt.Sprintf("Holiday %s saved", args[0]))
	return nil
}

func runCalendarList(cmd *cobra.Command, args []string) error {
	var from, to time.Time
	if calendarYear > 0 {
		from = time.Date(calendarYear, 1, 1, 0, 0, 0, 0, time.UTC)
		to = time.Date(calendarYear, 12, 31, 0, 0, 0, 0, time.UTC)
	}

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	holidays, err := d.stores.Holidays.ListHolidays(context.Background(), from, to)
	if err != nil {
		return fmt.Errorf("list holidays: %w", err)
	}

	widths := []int{10, 40}
	PrintTableHeader([]string{"Date", "Name"}, widths)
	for _, h := range holidays {
		PrintTableRow([]string{h.Date.Format(contracts.DateLayout), orDash(h.Name)}, widths)
	}
	return nil
}

func runCalendarSync(cmd *cobra.Command, args []string) error {
	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	if d.cfg.HolidaySourceURL == "" {
		return fmt.Errorf("HOLIDAY_SOURCE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	count, err := d.holidayScraper().Sync(ctx, d.stores.Holidays)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	PrintSuccess(fmt.Sprintf("%d holidays synced", count))
	return nil
}
