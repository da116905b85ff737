package environment

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/trading-ecosystem/chaos-coordinator/pkg/types"
)

// KnownServices are the target services of the trading ecosystem
var KnownServices = []string{"exchange", "custodian", "market-data", "trading", "risk", "audit"}

// KnownAssertionKinds enumerate the built-in evaluator kinds, used to scan
// the per-kind poll interval overrides
var KnownAssertionKinds = []string{
	"system_health", "risk_alert", "trading_adaptation", "system_recovery",
	"alert_resolution", "price_divergence", "performance_recovery",
	"audit_correlation", "custom",
}

//GetENV fetches all the engine tunables from the environment
func GetENV(details *types.CoordinatorDetails) {
	details.MaxConcurrentExecutions = getEnvAsInt("MAX_CONCURRENT_EXECUTIONS", 3)
	details.DefaultScenarioTimeout = getEnvAsDuration("DEFAULT_SCENARIO_TIMEOUT", 2*time.Hour)
	details.AssertionPollInterval = getEnvAsDuration("ASSERTION_POLL_INTERVAL", 5*time.Second)
	details.ActionTimeoutDefault = getEnvAsDuration("ACTION_TIMEOUT_DEFAULT", 30*time.Second)
	details.CancellationGrace = getEnvAsDuration("CANCELLATION_GRACE", 2*time.Second)
	details.RollbackEnabled = getEnvAsBool("ROLLBACK_ENABLED", true)
	details.RollbackTimeout = getEnvAsDuration("ROLLBACK_TIMEOUT", 10*time.Minute)
	details.RollbackActionTimeout = getEnvAsDuration("ROLLBACK_ACTION_TIMEOUT", 30*time.Second)
	details.AggressiveCleanup = getEnvAsBool("ROLLBACK_AGGRESSIVE_CLEANUP", false)
	details.ExecutionRetention = getEnvAsDuration("EXECUTION_RETENTION", time.Hour)
	details.RedisURL = os.Getenv("REDIS_URL")
	details.PostgresURL = os.Getenv("POSTGRES_URL")
	details.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	details.AssertionPollOverrides = map[string]time.Duration{}
	for _, kind := range KnownAssertionKinds {
		key := "ASSERTION_POLL_INTERVAL_" + strings.ToUpper(kind)
		if override := getEnvAsDuration(key, 0); override > 0 {
			details.AssertionPollOverrides[kind] = override
		}
	}

	details.Services = map[string]types.ServiceEndpoint{}
	for _, service := range KnownServices {
		prefix := strings.ToUpper(strings.ReplaceAll(service, "-", "_"))
		url := os.Getenv(prefix + "_SERVICE_URL")
		if url == "" {
			continue
		}
		details.Services[service] = types.ServiceEndpoint{
			BaseURL: strings.TrimRight(url, "/"),
			Timeout: getEnvAsDuration(prefix+"_SERVICE_TIMEOUT", 0),
		}
	}
}

func getEnvAsInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return fallback
}
