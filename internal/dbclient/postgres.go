package dbclient

import (
	"fmt"
	"net/url"
	"strings"

	_ "github.com/lib/pq"

	"nyql/internal/domain"
)

// buildPostgresDSN constructs a lib/pq keyword connection string from a
// JDBC-style or postgres:// URL. Anything else is passed through as a
// keyword DSN, with the endpoint credentials appended when absent.
func buildPostgresDSN(ep domain.Endpoint) (string, error) {
	raw := strings.TrimPrefix(ep.URL, "jdbc:")
	if !strings.HasPrefix(raw, "postgresql://") && !strings.HasPrefix(raw, "postgres://") {
		dsn := raw
		if ep.User != "" && !strings.Contains(dsn, "user=") {
			dsn += " user=" + quoteDSNValue(ep.User)
		}
		if ep.Password != "" && !strings.Contains(dsn, "password=") {
			dsn += " password=" + quoteDSNValue(ep.Password)
		}
		return strings.TrimSpace(dsn), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	user, password := ep.User, ep.Password
	if u.User != nil {
		user = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			password = pw
		}
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		quoteDSNValue(u.Hostname()), port, quoteDSNValue(user), quoteDSNValue(password),
		quoteDSNValue(strings.TrimPrefix(u.Path, "/")), sslMode,
	)
	if timeout := u.Query().Get("connect_timeout"); timeout != "" {
		dsn += " connect_timeout=" + quoteDSNValue(timeout)
	}
	return dsn, nil
}

// quoteDSNValue single-quotes values that are empty or contain spaces or quotes.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
