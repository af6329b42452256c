// Package config loads assessor configuration from environment variables.
//
// Every setting has a default except the database URL, which is required
// when ASSESSOR_STORE is postgres:
//
//	ASSESSOR_HTTP_ADDR=":8080"
//	ASSESSOR_METRICS_ADDR=":9090"
//	ASSESSOR_STORE="postgres"            # postgres or memory
//	ASSESSOR_DATABASE_URL="postgres://localhost/assessor?sslmode=disable"
//	ASSESSOR_REDIS_URL="redis://localhost:6379/0"
//	ASSESSOR_IMPERSONATION_TTL="2h"      # 1m..24h
//	ASSESSOR_JANITOR_SCHEDULE="@every 10m"
//	ASSESSOR_AUDIT_DIR="/var/log/assessor"
//	ASSESSOR_RATE_LIMIT_PER_MINUTE="30"  # 0 disables
//	ASSESSOR_FEATURES_FILE="/etc/assessor/features.yaml"
//	ASSESSOR_OIDC_ISSUER="https://accounts.example.com"
//	ASSESSOR_OIDC_CLIENT_ID="assessor"
//	ASSESSOR_LOG_LEVEL="info"            # debug, info, warn, error
//	ASSESSOR_OTEL_ENABLED="true"
//
// Malformed numeric or duration values fall back to their defaults; range
// checks happen in Validate.
package config
