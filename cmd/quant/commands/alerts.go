package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// alertsCmd represents the alerts command
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "시그널 알림",
}

var (
	alertsSendCmd = &cobra.Command{
		Use:   "send",
		Short: "시그널 요약을 Telegram으로 전송",
		Long: `기준일의 시그널을 요약해 Telegram으로 전송합니다.
TELEGRAM_ENABLED=false이면 메시지만 출력합니다.

Example:
  go run ./cmd/quant alerts send
  go run ./cmd/quant alerts send --date 2024-01-02`,
		RunE: runAlertsSend,
	}

	// Flags
	alertsDate string
)

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsSendCmd)

	alertsSendCmd.Flags().StringVar(&alertsDate, "date", "", "기준일 (YYYY-MM-DD, 기본: 시장 시간 기준 어제)")
}

func runAlertsSend(cmd *cobra.Command, args []string) error {
	dateRef, err := parseDateFlag("date", alertsDate)
	if err != nil {
		return err
	}

	d, err := newDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	if dateRef == nil {
		today, err := marketToday(d.cfg)
		if err != nil {
			return err
		}
		yesterday := today.AddDate(0, 0, -1)
		dateRef = &yesterday
	}

	result, err := d.alerter(nil).Run(context.Background(), *dateRef)
	if err != nil {
		PrintError(err.Error())
		return err
	}

	fmt.Println(result.Message)
	fmt.Println()
	if result.Sent {
		PrintSuccess(fmt.Sprintf("Alert sent (%d signals)", result.Signals))
	} else {
		PrintInfo("Alert not sent")
	}
	return nil
}
