package dbclient

import (
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"

	"nyql/internal/domain"
)

// buildMySQLDSN accepts either a JDBC-style URL (jdbc:mysql://host[:port]/db)
// or a native go-sql-driver DSN. Credentials in the URL win over the endpoint's.
func buildMySQLDSN(ep domain.Endpoint) (string, error) {
	raw := strings.TrimPrefix(ep.URL, "jdbc:")
	if !strings.HasPrefix(raw, "mysql://") {
		cfg, err := mysql.ParseDSN(raw)
		if err != nil {
			return "", err
		}
		if cfg.User == "" {
			cfg.User = ep.User
		}
		if cfg.Passwd == "" {
			cfg.Passwd = ep.Password
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	cfg := mysql.NewConfig()
	cfg.User = ep.User
	cfg.Passwd = ep.Password
	if u.User != nil {
		cfg.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			cfg.Passwd = pw
		}
	}
	port := u.Port()
	if port == "" {
		port = "3306"
	}
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(u.Hostname(), port)
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	if u.Query().Get("sslmode") == "require" {
		cfg.TLSConfig = "true"
	}
	return cfg.FormatDSN(), nil
}
