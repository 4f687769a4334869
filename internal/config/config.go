// config — источник загрузки конфигурации web-bff.
//
// Источники (по убыванию приоритета):
//  1. явный путь --config;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. только ENV (cleanenv).
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Gateway  GatewayConfig `yaml:"gateway"`
	Session  SessionConfig `yaml:"session"`
	Google   GoogleConfig  `yaml:"google"`
	Redis    RedisConfig   `yaml:"redis"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// HTTPConfig — публичный HTTP-сервер BFF.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"50095"`
}

func (h HTTPConfig) Addr() string { return net.JoinHostPort(h.Host, h.Port) }

// GatewayConfig — параметры доступа к API Gateway бэкенда.
// Секция /auth/* того же шлюза используется клиентом обмена токенов.
type GatewayConfig struct {
	URL string `yaml:"url" env:"API_GATEWAY_URL" env-default:"http://localhost:4000/api/v1"`
	// RetryAttempts — максимум попыток идемпотентного запроса (сеть/502/503).
	RetryAttempts int `yaml:"retry_attempts" env:"GATEWAY_RETRY_ATTEMPTS" env-default:"3"`
}

// SessionConfig — параметры подписанной сессионной cookie.
type SessionConfig struct {
	// Secret — ключ подписи HS256 сессионного JWT.
	Secret     string `yaml:"secret" env:"SESSION_SECRET" env-required:"true"`
	CookieName string `yaml:"cookie_name" env:"SESSION_COOKIE_NAME" env-default:"qna_session"`
	Issuer     string `yaml:"issuer" env:"SESSION_ISSUER" env-default:"web-bff"`
	// AccessTokenTTL/RefreshTokenTTL — дефолтные сроки, если auth-сервис
	// не прислал expiresIn/refreshExpiresIn.
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	// CookieSecure — флаг Secure у cookie (выключают только в local-окружении).
	CookieSecure bool `yaml:"cookie_secure" env:"SESSION_COOKIE_SECURE" env-default:"true"`
}

// GoogleConfig — OAuth-провайдер. AuthURL/TokenURL переопределяются в тестах.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id" env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"GOOGLE_CLIENT_SECRET"`
	RedirectURL  string `yaml:"redirect_url" env:"GOOGLE_REDIRECT_URL"`
	AuthURL      string `yaml:"auth_url" env:"GOOGLE_AUTH_URL" env-default:"https://accounts.google.com/o/oauth2/v2/auth"`
	TokenURL     string `yaml:"token_url" env:"GOOGLE_TOKEN_URL" env-default:"https://oauth2.googleapis.com/token"`
	Scopes       string `yaml:"scopes" env:"GOOGLE_SCOPES" env-default:"openid email profile"`
}

// RedisConfig — опциональный Redis для single-flight обновления и
// отметок logout-all. Пустой URL отключает Store.
type RedisConfig struct {
	URL string `yaml:"url" env:"REDIS_URL"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	// Service — общий дедлайн входящего запроса.
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"15s"`
	// Exchange — таймаут обмена/обновления токенов на auth-сервисе.
	Exchange time.Duration `yaml:"exchange" env:"EXCHANGE_TIMEOUT" env-default:"10s"`
	// Health — таймаут live health-check'а auth-сервиса.
	Health time.Duration `yaml:"health" env:"HEALTH_TIMEOUT" env-default:"3s"`
}

// MustLoad — паника при ошибке загрузки.
func MustLoad(path string) *Config {
	cfg, err := Load(path)

	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) --config
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read local.yaml: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 4) только ENV
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	return &cfg, nil
}
