// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

// Package config loads daemon configuration from RUNECUSTODY_ prefixed environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/BoostyLabs/runecustody/bitcoin/submission"
	"github.com/BoostyLabs/runecustody/bitcoin/txbuilder"
)

var (
	supportedDbs = supportedType{
		"badger":   {},
		"inmemory": {},
	}
	supportedOracles = supportedType{
		"local": {},
	}
	supportedNetworks = map[string]*chaincfg.Params{
		"mainnet": &chaincfg.MainNetParams,
		"testnet": &chaincfg.TestNet3Params,
		"signet":  &chaincfg.SigNetParams,
		"regtest": &chaincfg.RegressionNetParams,
	}
	supportedLogFormats = supportedType{
		"text": {},
		"json": {},
	}
)

// Config defines configuration of the custody daemon.
type Config struct {
	Datadir   string
	DbType    string
	DbDir     string
	Network   string
	LogLevel  int
	LogFormat string

	EsploraURL     string
	MetricsAddr    string
	RevealInterval time.Duration

	OracleType   string
	OracleSeed   string `json:"-"` // local oracle.
	ECDSAKeyID   string
	SchnorrKeyID string

	Postage         uint64
	MaxRounds       int
	SyncBeforeBuild bool
}

func (c *Config) String() string {
	json, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir         = "DATADIR"
	DbType          = "DB_TYPE"
	Network         = "NETWORK"
	LogLevel        = "LOG_LEVEL"
	LogFormat       = "LOG_FORMAT"
	EsploraURL      = "ESPLORA_URL"
	MetricsAddr     = "METRICS_ADDR"
	RevealInterval  = "REVEAL_INTERVAL"
	OracleType      = "ORACLE_TYPE"
	OracleSeed      = "ORACLE_SEED"
	ECDSAKeyID      = "ECDSA_KEY_ID"
	SchnorrKeyID    = "SCHNORR_KEY_ID"
	Postage         = "POSTAGE"
	MaxRounds       = "MAX_ROUNDS"
	SyncBeforeBuild = "SYNC_BEFORE_BUILD"

	defaultDatadir         = filepath.Join(".", "runecustody")
	defaultDbType          = "badger"
	defaultNetwork         = "regtest"
	defaultLogLevel        = int(log.InfoLevel)
	defaultLogFormat       = "text"
	defaultEsploraURL      = "http://localhost:3000"
	defaultMetricsAddr     = ":9090"
	defaultRevealInterval  = submission.DefaultRevealInterval
	defaultOracleType      = "local"
	defaultPostage         = txbuilder.DefaultPostage
	defaultMaxRounds       = txbuilder.DefaultMaxRounds
	defaultSyncBeforeBuild = true
)

// LoadConfig reads configuration from the environment.
func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("RUNECUSTODY")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(Network, defaultNetwork)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(LogFormat, defaultLogFormat)
	viper.SetDefault(EsploraURL, defaultEsploraURL)
	viper.SetDefault(MetricsAddr, defaultMetricsAddr)
	viper.SetDefault(RevealInterval, defaultRevealInterval)
	viper.SetDefault(OracleType, defaultOracleType)
	viper.SetDefault(Postage, defaultPostage)
	viper.SetDefault(MaxRounds, defaultMaxRounds)
	viper.SetDefault(SyncBeforeBuild, defaultSyncBeforeBuild)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	return &Config{
		Datadir:         viper.GetString(Datadir),
		DbType:          viper.GetString(DbType),
		DbDir:           filepath.Join(viper.GetString(Datadir), "db"),
		Network:         viper.GetString(Network),
		LogLevel:        viper.GetInt(LogLevel),
		LogFormat:       viper.GetString(LogFormat),
		EsploraURL:      viper.GetString(EsploraURL),
		MetricsAddr:     viper.GetString(MetricsAddr),
		RevealInterval:  viper.GetDuration(RevealInterval),
		OracleType:      viper.GetString(OracleType),
		OracleSeed:      viper.GetString(OracleSeed),
		ECDSAKeyID:      viper.GetString(ECDSAKeyID),
		SchnorrKeyID:    viper.GetString(SchnorrKeyID),
		Postage:         viper.GetUint64(Postage),
		MaxRounds:       viper.GetInt(MaxRounds),
		SyncBeforeBuild: viper.GetBool(SyncBeforeBuild),
	}, nil
}

// Validate checks configured types and values.
func (c *Config) Validate() error {
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedOracles.supports(c.OracleType) {
		return fmt.Errorf("oracle type not supported, please select one of: %s", supportedOracles)
	}
	if _, ok := supportedNetworks[c.Network]; !ok {
		return fmt.Errorf("network not supported, please select one of: %s", networkNames())
	}
	if !supportedLogFormats.supports(c.LogFormat) {
		return fmt.Errorf("log format not supported, please select one of: %s", supportedLogFormats)
	}
	if c.OracleType == "local" && len(c.OracleSeed) == 0 {
		return fmt.Errorf("%s_%s not provided", "RUNECUSTODY", OracleSeed)
	}
	if len(c.EsploraURL) == 0 {
		return fmt.Errorf("esplora url not provided")
	}
	if c.RevealInterval < time.Second {
		return fmt.Errorf("invalid reveal interval, must be at least 1 second")
	}
	if c.Postage < txbuilder.DustThreshold {
		return fmt.Errorf("invalid postage, must be at least %d satoshi", txbuilder.DustThreshold)
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("invalid max rounds, must be positive")
	}

	return nil
}

// NetworkParams returns chain parameters of the configured network.
func (c *Config) NetworkParams() *chaincfg.Params {
	return supportedNetworks[c.Network]
}

// InitLogger applies log level and format.
func (c *Config) InitLogger() {
	log.SetLevel(log.Level(c.LogLevel))
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

func networkNames() string {
	names := make([]string, 0, len(supportedNetworks))
	for name := range supportedNetworks {
		names = append(names, name)
	}
	sort.Strings(names)

	return strings.Join(names, " | ")
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	sort.Strings(types)
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
