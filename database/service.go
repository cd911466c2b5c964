// Package database opens SQL connections with pure Go drivers and wraps them
// in GORM for the account store.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Common errors
var (
	ErrInvalidDriver = errors.New("invalid database driver")
	ErrInvalidConfig = errors.New("invalid database configuration")
)

// Open connects with NewSQL and wraps the pool with NewGORM.
func Open(cfg Config) (*gorm.DB, error) {
	sqlDB, err := NewSQL(cfg)
	if err != nil {
		return nil, err
	}
	db, err := NewGORM(cfg, sqlDB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// NewSQL creates a new SQL database connection with given config
func NewSQL(cfg Config) (*sql.DB, error) {
	cfg = normalize(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	driverName, dsn, err := driverDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewGORM creates a GORM instance from an existing SQL connection
func NewGORM(cfg Config, sqlDB *sql.DB) (*gorm.DB, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sql.DB instance is required for GORM")
	}
	cfg = normalize(cfg)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.New(mysql.Config{Conn: sqlDB})
	case "postgres":
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	case "sqlite", "libsql":
		dialector = sqlite.Dialector{Conn: sqlDB}
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidDriver, cfg.Driver)
	}

	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}
	if cfg.Debug {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	return gorm.Open(dialector, gormCfg)
}

// Ping verifies the connection behind a GORM handle.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the pool behind a GORM handle.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsUniqueViolation reports whether err is a unique constraint failure from
// any supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

func normalize(cfg Config) Config {
	if cfg.URL != "" && (cfg.Driver == "" || cfg.Driver == "sqlite") {
		if driver, _ := parseURLForDriver(cfg.URL); driver != "" {
			cfg.Driver = driver
		}
	}
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql", "pgx":
		cfg.Driver = "postgres"
	case "sqlite", "sqlite3":
		cfg.Driver = "sqlite"
	case "libsql", "turso":
		cfg.Driver = "libsql"
	case "mysql":
		cfg.Driver = "mysql"
	}
	return cfg
}

func validateConfig(cfg Config) error {
	switch cfg.Driver {
	case "":
		return errors.New("database driver required")
	case "libsql":
		if cfg.URL == "" {
			return errors.New("turso requires URL to be set")
		}
	case "mysql", "postgres":
		if cfg.URL == "" && (cfg.Host == "" || cfg.Database == "") {
			return errors.New("database connection details required")
		}
	}
	return nil
}

func driverDSN(cfg Config) (driverName, dsn string, err error) {
	switch cfg.Driver {
	case "mysql":
		if cfg.URL != "" {
			_, dsn = parseURLForDriver(cfg.URL)
			return "mysql", dsn, nil
		}
		return "mysql", buildMySQLDSN(cfg), nil
	case "postgres":
		return "pgx", buildPostgresDSN(cfg), nil
	case "sqlite":
		dsn = cfg.Database
		if cfg.URL != "" {
			_, dsn = parseURLForDriver(cfg.URL)
		}
		if dsn == "" {
			dsn = "file:signin.db?cache=shared&mode=rwc"
		}
		return "sqlite", dsn, nil
	case "libsql":
		dsn = cfg.URL
		if cfg.AuthToken != "" {
			dsn = fmt.Sprintf("%s?authToken=%s", cfg.URL, url.QueryEscape(cfg.AuthToken))
		}
		return "libsql", dsn, nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrInvalidDriver, cfg.Driver)
	}
}

// parseURLForDriver infers the database/sql driver from a connection URL and
// converts the URL to the DSN that driver expects.
func parseURLForDriver(databaseURL string) (driver, dsn string) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return "pgx", databaseURL
	case strings.HasPrefix(databaseURL, "mysql://"):
		u, err := url.Parse(databaseURL)
		if err != nil {
			return "mysql", strings.TrimPrefix(databaseURL, "mysql://")
		}
		password, _ := u.User.Password()
		host := u.Host
		if u.Port() == "" {
			host += ":3306"
		}
		dsn = fmt.Sprintf("%s:%s@tcp(%s)%s", u.User.Username(), password, host, u.Path)
		if u.RawQuery != "" {
			dsn += "?" + u.RawQuery
		}
		return "mysql", dsn
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return "sqlite", strings.TrimPrefix(databaseURL, "sqlite://")
	case strings.HasPrefix(databaseURL, "file:"):
		return "sqlite", databaseURL
	case strings.HasPrefix(databaseURL, "libsql://"), strings.HasPrefix(databaseURL, "https://"), strings.HasPrefix(databaseURL, "wss://"):
		return "libsql", databaseURL
	default:
		return "", databaseURL
	}
}

func buildMySQLDSN(cfg Config) string {
	port := cfg.Port
	if port == "" {
		port = "3306"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s", cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)

	params := []string{"charset=utf8mb4", "parseTime=True", "loc=UTC"}
	if cfg.Params != "" {
		params = append(params, cfg.Params)
	}
	return dsn + "?" + strings.Join(params, "&")
}

func buildPostgresDSN(cfg Config) string {
	if cfg.URL != "" {
		return cfg.URL
	}

	port := cfg.Port
	if port == "" {
		port = "5432"
	}

	parts := []string{
		fmt.Sprintf("host=%s", cfg.Host),
		fmt.Sprintf("port=%s", port),
		fmt.Sprintf("user=%s", cfg.Username),
		fmt.Sprintf("password=%s", cfg.Password),
		fmt.Sprintf("dbname=%s", cfg.Database),
		fmt.Sprintf("sslmode=%s", cfg.SSLMode),
	}
	if cfg.Params != "" {
		parts = append(parts, cfg.Params)
	}
	return strings.Join(parts, " ")
}
