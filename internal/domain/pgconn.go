package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// GDALConnString converts a postgres:// URL into the "PG:" datasource string
// understood by the GDAL PostgreSQL driver. Components missing from the URL
// are omitted so libpq falls back to its own defaults.
func GDALConnString(dbURL string) (string, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("parse database url: unsupported scheme %q", u.Scheme)
	}

	var parts []string
	add := func(key, value string) {
		if value != "" {
			parts = append(parts, fmt.Sprintf("%s='%s'", key, quoteConnValue(value)))
		}
	}

	add("host", u.Hostname())
	add("port", u.Port())
	add("dbname", strings.TrimPrefix(u.Path, "/"))
	if u.User != nil {
		add("user", u.User.Username())
		pw, _ := u.User.Password()
		add("password", pw)
	}

	return "PG:" + strings.Join(parts, " "), nil
}

// quoteConnValue escapes backslashes and single quotes per libpq conninfo rules.
func quoteConnValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
