package config

import (
	"os"
	"strconv"
	"time"
)

// lookupString overlays dst with the value of the environment variable key,
// when set and non-empty.
func lookupString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func lookupBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func lookupDuration(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

// parseEnv overlays Config fields from environment variables. A variable
// that is unset or empty leaves the current value untouched.
func parseEnv(config *Config) {
	lookupString("SERVER_ADDR", &config.EndpointAddrHTTP)
	lookupString("DATABASE_DSN", &config.DatabaseDSN)
	lookupString("API_KEY", &config.APIKey)
	lookupString("S3_ACCESS_KEY", &config.S3AccessKey)
	lookupString("S3_SECRET_KEY", &config.S3SecretKey)
	lookupString("S3_BUCKET", &config.S3Bucket)
	lookupString("S3_REGION", &config.S3Region)
	lookupString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	lookupBool("S3_USE_PATH_STYLE", &config.S3UsePathStyle)
	lookupDuration("PART_URL_TTL", &config.PartURLTTL)
	lookupDuration("PUT_URL_TTL", &config.PutURLTTL)
	lookupDuration("DOWNLOAD_URL_TTL", &config.DownloadURLTTL)
}
