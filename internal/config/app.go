package config

import "time"

// Config holds runtime configuration for the devploy service.
type Config struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	StorageEndpoint    string
	StorageRegion      string
	StorageAccessKey   string
	StorageSecretKey   string
	StorageBucket      string
	DomainSuffix       string
	WorkspaceRoot      string
	GitTimeout         time.Duration
	InstallTimeout     time.Duration
	BuildTimeout       time.Duration
	WebhookSecret      string
	BuildWorkers       int
	BuildQueueSize     int
	LogBuffer          int
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// Load constructs a Config from environment variables.
//
// Storage and database settings default to empty; operations depending on
// them fail individually rather than at startup.
func Load() Config {
	return Config{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("DEVPLOY_ADDR", ":9000"),
		DatabaseURL:        GetString("DATABASE_URL", ""),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		StorageEndpoint:    GetString("STORAGE_ENDPOINT", ""),
		StorageRegion:      GetString("STORAGE_REGION", "auto"),
		StorageAccessKey:   GetString("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey:   GetString("STORAGE_SECRET_KEY", ""),
		StorageBucket:      GetString("STORAGE_BUCKET", ""),
		DomainSuffix:       GetString("DOMAIN_SUFFIX", ".devploy.local"),
		WorkspaceRoot:      GetString("WORKSPACE_ROOT", "/tmp/devploy"),
		GitTimeout:         time.Duration(GetInt("GIT_TIMEOUT_SECONDS", 60)) * time.Second,
		InstallTimeout:     time.Duration(GetInt("INSTALL_TIMEOUT_SECONDS", 300)) * time.Second,
		BuildTimeout:       time.Duration(GetInt("BUILD_TIMEOUT_SECONDS", 600)) * time.Second,
		WebhookSecret:      GetString("GIT_WEBHOOK_SECRET", ""),
		BuildWorkers:       GetInt("BUILD_WORKERS", 2),
		BuildQueueSize:     GetInt("BUILD_QUEUE_SIZE", 16),
		LogBuffer:          GetInt("WS_LOG_BUFFER", 100),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}

// PublicURL derives the published site URL for a project name.
func (c Config) PublicURL(projectName string) string {
	return "http://" + projectName + c.DomainSuffix
}
