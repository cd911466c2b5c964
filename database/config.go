package database

import "time"

// Config holds database configuration
type Config struct {
	// Driver: postgres, mysql, sqlite, turso, libsql. Inferred from URL when empty.
	Driver string `env:"DB_DRIVER,default:sqlite"`

	// Connection details (for traditional databases)
	Host     string `env:"DB_HOST,default:localhost"`
	Port     string `env:"DB_PORT"`
	Database string `env:"DB_DATABASE,default:signin.db"`
	Username string `env:"DB_USERNAME"`
	Password string `env:"DB_PASSWORD"`

	// URL for direct connection string (overrides individual settings)
	URL string `env:"DB_URL"`

	// Auth token for Turso/LibSQL
	AuthToken string `env:"DB_AUTH_TOKEN"`

	SSLMode string `env:"DB_SSL_MODE,default:disable"` // PostgreSQL only

	// Connection Pool Settings
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default:25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default:5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default:5m"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME,default:1m"`

	// Additional driver-specific parameters
	Params string `env:"DB_PARAMS"`

	// Debug enables GORM statement logging
	Debug bool `env:"DB_DEBUG,default:false"`

	// AutoMigrate creates or updates the account tables at startup
	AutoMigrate bool `env:"DB_AUTO_MIGRATE,default:true"`
}
