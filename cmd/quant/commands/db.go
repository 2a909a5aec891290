package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsignals/internal/data/repos"
	"github.com/wonny/eodsignals/pkg/config"
	"github.com/wonny/eodsignals/pkg/database"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "PostgreSQL 관리",
	Long: `스키마 적용과 연결 점검을 수행합니다.

Example:
  go run ./cmd/quant db migrate
  go run ./cmd/quant db ping`,
}

var (
	dbMigrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "스키마 적용 (idempotent)",
		RunE:  runDBMigrate,
	}

	dbPingCmd = &cobra.Command{
		Use:   "ping",
		Short: "PostgreSQL 연결 테스트",
		Long: `데이터베이스 연결을 테스트하고 풀 통계를 표시합니다.

이 명령어는:
- config에서 DATABASE_URL 로드
- 데이터베이스 연결 생성
- Health Check 실행
- Connection Pool 통계 표시`,
		RunE: runDBPing,
	}

	dbSchemaCmd = &cobra.Command{
		Use:   "schema",
		Short: "적용될 DDL 출력",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(repos.Schema())
			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd, dbPingCmd, dbSchemaCmd)
}

func connectDB() (*config.Config, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("❌ Failed to load config: %w", err)
	}
	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("❌ Failed to connect to database: %w", err)
	}
	return cfg, db, nil
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	_, db, err := connectDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := repos.Migrate(ctx, db); err != nil {
		return fmt.Errorf("❌ Migration failed: %w", err)
	}
	PrintSuccess("Schema applied")
	return nil
}

func runDBPing(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Database Connection Test ===")

	cfg, db, err := connectDB()
	if err != nil {
		return err
	}
	defer db.Close()
	fmt.Printf("✅ Config loaded (ENV: %s)\n", cfg.Env)
	fmt.Printf("   Database URL: %s\n\n", maskPassword(cfg.Database.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("❌ Health check failed: %w", err)
	}

	fmt.Println("✅ Health Check Results:")
	fmt.Printf("   Healthy: %v\n", status.Healthy)
	fmt.Printf("   Response Time: %v\n", status.ResponseTime)
	fmt.Printf("   Timestamp: %v\n\n", status.Timestamp.Format(time.RFC3339))

	fmt.Println("📊 Connection Pool Statistics:")
	fmt.Printf("   Max Connections: %d\n", status.Stats.MaxConns)
	fmt.Printf("   Total Connections: %d\n", status.Stats.TotalConns)
	fmt.Printf("   Idle Connections: %d\n", status.Stats.IdleConns)
	fmt.Printf("   Acquire Count: %d\n", status.Stats.AcquireCount)
	return nil
}

// maskPassword hides the password of a postgres URL
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
