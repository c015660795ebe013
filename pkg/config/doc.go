// Package config provides application configuration management from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	QA_HOST="0.0.0.0"
//	QA_PORT="8080"
//	QA_HEALTH_PORT="9090"
//	QA_READ_TIMEOUT="15s"
//	QA_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings. The backend is chosen once at startup and decides the
// identifier shape (ObjectID for mongodb, UUIDv4 for postgres):
//
//	QA_DB_BACKEND="mongodb"  # mongodb, postgres
//	QA_MONGO_URI="mongodb://localhost:27017"
//	QA_MONGO_DATABASE="qa"
//	QA_POSTGRES_URL="postgres://localhost/qa"
//	QA_POSTGRES_MAX_CONNS="20"
//	QA_DB_TIMEOUT="10s"
//
// Cache settings:
//
//	QA_CACHE_BACKEND="redis"  # none, memory, redis
//	QA_REDIS_URL="redis://localhost:6379/0"
//	QA_CACHE_TTL="5m"
//	QA_CACHE_PREFIX="qa:"
//
// RBAC settings:
//
//	QA_SWEEP_ENABLED="true"
//	QA_SWEEP_SCHEDULE="@every 5m"
//	QA_SEED_FILE="seeds/rbac.yaml"
//
// Observability settings:
//
//	QA_LOG_LEVEL="info"  # debug, info, warn, error
//	QA_METRICS_ENABLED="true"
//	QA_OTEL_ENABLED="true"
//	QA_OTEL_ENDPOINT="otel-collector:4317"
package config
