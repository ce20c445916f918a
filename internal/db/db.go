package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/shinyyama/tailor-backend/internal/config"
	"github.com/shinyyama/tailor-backend/internal/model"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func BuildDSN(cfg *config.DBConfig) string {
	addr := cfg.Host

	// Prefer Cloud SQL unix socket when INSTANCE_CONNECTION_NAME is provided.
	if cfg.InstanceConnectionName != "" {
		addr = fmt.Sprintf("unix(/cloudsql/%s)", cfg.InstanceConnectionName)
	} else if strings.HasPrefix(cfg.Host, "tcp(") || strings.HasPrefix(cfg.Host, "unix(") {
		// already wrapped
	} else if strings.HasPrefix(cfg.Host, "/") {
		addr = fmt.Sprintf("unix(%s)", cfg.Host)
	} else {
		addr = fmt.Sprintf("tcp(%s:%s)", cfg.Host, cfg.Port)
	}

	return fmt.Sprintf("%s:%s@%s/%s?charset=utf8mb4&parseTime=True&loc=UTC", cfg.User, cfg.Password, addr, cfg.Name)
}

// Connect opens the pool through otelsql so query spans and pool metrics are
// recorded, then hands the instrumented *sql.DB to gorm.
func Connect(cfg *config.DBConfig) (*gorm.DB, error) {
	return Open(BuildDSN(cfg))
}

func Open(dsn string) (*gorm.DB, error) {
	sqlDB, err := otelsql.Open("mysql", dsn, otelsql.WithAttributes(semconv.DBSystemMySQL))
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)

	gcfg := &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB}), gcfg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Models lists every table the service owns, in dependency order.
func Models() []any {
	return []any{
		&model.Design{},
		&model.PricingRule{},
		&model.Order{},
		&model.TimelineEntry{},
		&model.DeliveryJob{},
		&model.DeliveryJobEvent{},
		&model.ProcessedEvent{},
		&model.Sequence{},
		&model.ShopEarning{},
		&model.Notification{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
