package utils

import (
	"os"
	"strconv"
	"time"
)

type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration
}

func LoadAuthConfig() AuthConfig {
	secret := os.Getenv("BOOKHUB_JWT_SECRET")
	if secret == "" {
		// dev default (change for demo / production)
		secret = "dev-secret-change-me"
	}

	issuer := os.Getenv("BOOKHUB_JWT_ISSUER")
	if issuer == "" {
		issuer = "bookhub"
	}

	// tokens behave like the session tokens they replace: short-lived
	ttl := time.Hour
	if raw := os.Getenv("BOOKHUB_TOKEN_TTL_MINUTES"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			ttl = time.Duration(n) * time.Minute
		}
	}

	return AuthConfig{
		JWTSecret: secret,
		JWTIssuer: issuer,
		TokenTTL:  ttl,
	}
}

type ServerConfig struct {
	Addr       string
	StorageDir string
	BaseURL    string
}

func LoadServerConfig() ServerConfig {
	addr := os.Getenv("BOOKHUB_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	dir := os.Getenv("BOOKHUB_STORAGE_DIR")
	if dir == "" {
		dir = "storage"
	}

	base := os.Getenv("BOOKHUB_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	return ServerConfig{
		Addr:       addr,
		StorageDir: dir,
		BaseURL:    base,
	}
}
