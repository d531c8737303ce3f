package main

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type config struct {
	Port        int `default:"8080"`
	MetricsPort int `default:"9090"`
	Postgres    postgres
	Redis       redis
}

type postgres struct {
	DSN string `required:"true"`
}

type redis struct {
	Host     string `default:"localhost"`
	Port     string `default:"6379"`
	User     string
	Password string
	DB       int
}

func newConfig() (config, error) {
	var cfg config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return config{}, fmt.Errorf("failed to process env var: %w", err)
	}
	return cfg, nil
}
