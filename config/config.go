package config

import (
	"errors"
	"flag"
	"net"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string
	DBUrl       string
	TokenSecret string
	TokenTTL    time.Duration
	Debug       bool
}

// ParseFlags reads configuration from command-line flags, falling back to
// environment variables (a .env file is honored when present).
func ParseFlags() (cfg Config, err error) {
	godotenv.Load()

	var host string
	flag.StringVar(&host, "host", envString("HOST", "0.0.0.0"), "listen host name (default 0.0.0.0)")
	var port uint
	flag.UintVar(&port, "port", envUint("PORT", 80), "listen port number (default 80)")
	flag.StringVar(&cfg.DBUrl, "db-url", envString("DB_URL", "pulse.sqlite"), "path to SQLite3 DB file (default pulse.sqlite)")
	flag.StringVar(&cfg.TokenSecret, "token-secret", envString("TOKEN_SECRET", ""), "secret key for token encryption and decryption")
	var ttl uint
	flag.UintVar(&ttl, "token-ttl", envUint("TOKEN_TTL", 3600), "token TTL in seconds (default 3600)")
	flag.BoolVar(&cfg.Debug, "debug", envString("DEBUG", "") == "true", "log at DEBUG level")
	flag.Parse()

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.TokenTTL = time.Duration(ttl) * time.Second

	if cfg.TokenSecret == "" {
		err = errors.New("missing parameter -token-secret")
	}

	return
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint(key string, fallback uint) uint {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint(n)
		}
	}
	return fallback
}
