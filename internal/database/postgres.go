package database

import (
	"errors"
	"strconv"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), gormConfig(cfg))
}

// buildPostgresDSN renders a libpq keyword/value string. Sessions run in UTC.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres configuration requires user and database name")
	}

	params := [][2]string{
		{"host", valueOr(cfg.Host, "localhost")},
		{"port", strconv.Itoa(portOr(cfg.Port, 5432))},
		{"user", cfg.User},
		{"dbname", cfg.Name},
	}
	if cfg.Password != "" {
		params = append(params, [2]string{"password", cfg.Password})
	}
	options := mergeOptions(map[string]string{"sslmode": "disable", "TimeZone": "UTC"}, cfg.Options)
	for _, key := range sortedKeys(options) {
		params = append(params, [2]string{key, options[key]})
	}

	parts := make([]string, len(params))
	for i, kv := range params {
		parts[i] = kv[0] + "=" + quoteLibpq(kv[1])
	}
	return strings.Join(parts, " "), nil
}

// quoteLibpq single-quotes values that are empty or contain spaces, quotes or backslashes.
func quoteLibpq(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return "'" + escaped + "'"
}
