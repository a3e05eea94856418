package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/oracle-monitor/internal/config"
	"github.com/rickgao/oracle-monitor/internal/version"
)

// BuildConnString builds a PostgreSQL connection URL from config.
// Credentials are escaped, and the monitor identifies itself through
// application_name.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	query.Set("application_name", version.App)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
	return u.String()
}
