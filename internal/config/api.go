package config

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const (
	UserStoreDynamoDB = "dynamodb"
	UserStoreSQLite   = "sqlite"
)

// APIConfig configures the authentication API process.
type APIConfig struct {
	LogLevel   string
	UserStore  string
	UsersTable string
	SQLitePath string
	JWTSecret  string
}

// LoadAPI builds the API configuration. The JWT secret comes from JWT_SECRET or,
// failing that, from <PARAM_PREFIX>/jwt-secret through secrets.
func LoadAPI(ctx context.Context, getenv LookupFunc, secrets SecretGetter) (APIConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := APIConfig{
		LogLevel:   envOrDefault(getenv, "LOG_LEVEL", "info"),
		UserStore:  strings.ToLower(envOrDefault(getenv, "USER_STORE", UserStoreDynamoDB)),
		SQLitePath: envOrDefault(getenv, "SQLITE_PATH", "users.db"),
	}

	switch cfg.UserStore {
	case UserStoreDynamoDB:
		cfg.UsersTable = strings.TrimSpace(getenv("USERS_TABLE"))
		if cfg.UsersTable == "" {
			return APIConfig{}, &ConfigurationError{Variable: "USERS_TABLE", Reason: "is required when USER_STORE=dynamodb"}
		}
	case UserStoreSQLite:
	default:
		return APIConfig{}, &ConfigurationError{Variable: "USER_STORE", Reason: fmt.Sprintf("unsupported store %q", cfg.UserStore)}
	}

	if v := strings.TrimSpace(getenv("JWT_SECRET")); v != "" {
		cfg.JWTSecret = v
		return cfg, nil
	}
	prefix := strings.TrimRight(strings.TrimSpace(getenv("PARAM_PREFIX")), "/")
	if secrets == nil || prefix == "" {
		return APIConfig{}, &ConfigurationError{Variable: "JWT_SECRET", Reason: "is required"}
	}
	secret, err := secrets.GetParameter(ctx, prefix+"/jwt-secret")
	if err != nil {
		return APIConfig{}, &ConfigurationError{Variable: "JWT_SECRET", Reason: "not set and the parameter store lookup failed", Err: err}
	}
	if strings.TrimSpace(secret) == "" {
		return APIConfig{}, &ConfigurationError{Variable: "JWT_SECRET", Reason: "parameter is empty"}
	}
	cfg.JWTSecret = strings.TrimSpace(secret)
	return cfg, nil
}
