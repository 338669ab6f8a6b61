package config

import "time"

// SyncConfig holds runtime configuration for the sync gateway.
type SyncConfig struct {
	Environment     string
	Addr            string
	DatabaseURL     string
	MigrationsDir   string
	AutoMigrate     bool
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Change-notification transport. Empty RedisAddr keeps the bus
	// in-process, which only works for single-instance deployments.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ChatHistoryLimit int
	SessionIdleTTL   time.Duration
	EventBuffer      int

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadSyncConfig constructs a SyncConfig from environment variables.
func LoadSyncConfig() SyncConfig {
	return SyncConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("SYNC_ADDR", ":4100"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://werkplaats:werkplaats@db:5432/werkplaats?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		AutoMigrate:        GetBool("DB_AUTO_MIGRATE", true),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:     time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTokenTTL:    time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24)) * time.Hour,
		RedisAddr:          GetString("BUS_REDIS_ADDR", ""),
		RedisPassword:      GetString("BUS_REDIS_PASSWORD", ""),
		RedisDB:            GetInt("BUS_REDIS_DB", 0),
		ChatHistoryLimit:   GetInt("CHAT_HISTORY_LIMIT", 100),
		SessionIdleTTL:     time.Duration(GetInt("SESSION_IDLE_TTL_MIN", 30)) * time.Minute,
		EventBuffer:        GetInt("STORE_EVENT_BUFFER", 64),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
