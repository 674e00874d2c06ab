package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	BaseURL     string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	JWTSecret              string `env:"SECRET_KEY,required"`
	JWTAlgorithm           string `env:"JWT_ALGORITHM" envDefault:"HS256"`
	AccessTokenTTLMinutes  int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"15"`
	RefreshTokenTTLDays    int    `env:"REFRESH_TOKEN_EXPIRE_DAYS" envDefault:"7"`

	SMTPHost     string `env:"MAIL_SERVER"`
	SMTPPort     int    `env:"MAIL_PORT" envDefault:"587"`
	SMTPUser     string `env:"MAIL_USERNAME"`
	SMTPPass     string `env:"MAIL_PASSWORD"`
	SMTPFrom     string `env:"MAIL_FROM"`
	SMTPFromName string `env:"MAIL_FROM_NAME"`
	SMTPUseTLS   bool   `env:"MAIL_SSL_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	RateLimitMax           int `env:"RATE_LIMIT_MAX" envDefault:"10"`
	RateLimitWindowSeconds int `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
