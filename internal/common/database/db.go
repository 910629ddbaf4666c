package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type DB struct {
	*sqlx.DB
}

type Config struct {
	Host        string
	Port        int
	UserName    string
	Password    string
	DBName      string
	SSLMode     string
	WaitTimeout time.Duration
}

// DSN はlib/pq形式の接続文字列を返します
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.UserName,
		c.Password,
		c.DBName,
		sslMode,
	)
}

// NewDB はPostgreSQLへの接続を作成します
// tracing が true の場合はX-Ray対応のSQLコンテキストを利用します
func NewDB(cfg Config, tracing bool) (*DB, error) {
	var (
		db  *sql.DB
		err error
	)
	if tracing {
		db, err = xray.SQLContext("postgres", cfg.DSN())
	} else {
		db, err = sql.Open("postgres", cfg.DSN())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// コネクションプールの設定
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &DB{sqlx.NewDb(db, "postgres")}, nil
}

// WaitForDB はデータベースが接続を受け付けるまでPingを繰り返します
// timeout を過ぎた場合は最後のエラーを返します
func WaitForDB(ctx context.Context, db *DB, timeout time.Duration, logger *zap.Logger) error {
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backoff := 250 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			logger.Info("DB connected successfully", zap.Int("attempt", attempt))
			return nil
		}
		logger.Warn("database is not ready", zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready after %v: %w", timeout, err)
		case <-time.After(backoff):
		}
		if backoff < 4*time.Second {
			backoff *= 2
		}
	}
}
