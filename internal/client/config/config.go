package config

import (
	pkgconfig "github.com/emberchat/ember/pkg/config"
)

type Config struct {
	Server ServerConfig
	State  StateConfig
	Stream StreamConfig
	Log    LogConfig
}

type ServerConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	StreamURL      string `mapstructure:"stream_url"`
	RequestTimeout int    `mapstructure:"request_timeout"`
}

type StateConfig struct {
	FilePath string `mapstructure:"file_path"`
}

type StreamConfig struct {
	PingInterval   int `mapstructure:"ping_interval"`
	PongWait       int `mapstructure:"pong_wait"`
	WriteWait      int `mapstructure:"write_wait"`
	MaxMessageSize int `mapstructure:"max_message_size"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "client")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.stream_url", "ws://localhost:8080/ws")
	v.SetDefault("server.request_timeout", 10)
	v.SetDefault("state.file_path", "./data/client_state.json")
	v.SetDefault("stream.ping_interval", 54)
	v.SetDefault("stream.pong_wait", 60)
	v.SetDefault("stream.write_wait", 10)
	v.SetDefault("stream.max_message_size", 1048576)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Bind environment variables
	v.BindEnv("server.base_url", "SERVER_BASE_URL")
	v.BindEnv("server.stream_url", "SERVER_STREAM_URL")
	v.BindEnv("server.request_timeout", "REQUEST_TIMEOUT")
	v.BindEnv("state.file_path", "STATE_FILE_PATH")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.pretty", "LOG_PRETTY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
