package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Store     StoreConfig
	Chat      ChatConfig
}

type ServerConfig struct {
	Address         string
	LogLevel        string                `mapstructure:"logLevel"`
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret" validate:"required"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser" validate:"min=0"`
	Mode       string `mapstructure:"mode" validate:"oneof=reject cycle"`
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout" validate:"gt=0"`
	SendBuffer  int           `mapstructure:"sendBuffer" validate:"gt=0"`
}

type StoreConfig struct {
	Path string `validate:"required"`
}

type ChatConfig struct {
	AnonymousName string `mapstructure:"anonymousName" validate:"required"`
}
