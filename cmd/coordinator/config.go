package main

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type config struct {
	Postgres    postgres
	Redis       redis
	DataDog     dataDog
	Signer      signerConfig
	Evm         evmChain
	Near        nearChain
	Swap        swapConfig
	MetricsPort int `default:"9091"`
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

type dataDog struct {
	Host string `default:"localhost"`
	Port string `default:"8125"`
}

type signerConfig struct {
	URL string `required:"true"`
}

type evmChain struct {
	ChainID            string `default:"ethereum"`
	RpcURL             string `required:"true"`
	Contract           string `required:"true"`
	ConfirmDepth       uint64 `default:"3"`
	ReceiptIntervalSec int64  `default:"3"`
}

type nearChain struct {
	ChainID             string `default:"near"`
	RpcURL              string `required:"true"`
	Contract            string `required:"true"`
	SenderID            string `required:"true"`
	FinalizeIntervalSec int64  `default:"2"`
}

type swapConfig struct {
	SourceTimelockSec int64 `default:"7200"`
	DestTimelockSec   int64 `default:"3600"`
	ConfirmCeilingSec int64 `default:"600"`
	RefundIntervalSec int64 `default:"30"`
	RevealRetrySec    int64 `default:"1"`
	EscrowMaxAttempts uint64
	RevealMaxAttempts uint64
}

func newConfig() (config, error) {
	var cfg config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return config{}, fmt.Errorf("failed to process env var: %w", err)
	}
	return cfg, nil
}
