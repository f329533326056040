package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/tyler-smith/go-bip39"

	"github.com/GPTx-global/flightoracle/oracle/log"
)

const (
	EnvPrefix = "FLIGHTORACLE"

	// DefaultMnemonic is the truffle develop / ganache seed the original
	// deployment funded its oracle accounts from.
	DefaultMnemonic = "candy maple cake sugar pudding cream honey rich smooth crumble sweet treat"
)

var (
	home         = defaultHome()
	globalConfig = defaultConfig()
)

type configData struct {
	Chain  chainConfig  `toml:"chain" mapstructure:"chain"`
	Oracle oracleConfig `toml:"oracle" mapstructure:"oracle"`
	Gas    gasConfig    `toml:"gas" mapstructure:"gas"`
	Server serverConfig `toml:"server" mapstructure:"server"`
	Log    logConfig    `toml:"log" mapstructure:"log"`
}

type chainConfig struct {
	Endpoint string `toml:"endpoint" mapstructure:"endpoint"`
	// ChainID 0 means ask the node.
	ChainID  uint64 `toml:"chain_id" mapstructure:"chain_id"`
	Contract string `toml:"contract" mapstructure:"contract"`
	Artifact string `toml:"artifact" mapstructure:"artifact"`
}

type oracleConfig struct {
	Count        int    `toml:"count" mapstructure:"count"`
	FirstAccount uint32 `toml:"first_account" mapstructure:"first_account"`
	Mnemonic     string `toml:"mnemonic" mapstructure:"mnemonic"`
	MaxIndex     int    `toml:"max_index" mapstructure:"max_index"`
	// Seed 0 means seed status assignment from the clock.
	Seed int64 `toml:"seed" mapstructure:"seed"`
}

type gasConfig struct {
	RegisterLimit uint64 `toml:"register_limit" mapstructure:"register_limit"`
	ResponseLimit uint64 `toml:"response_limit" mapstructure:"response_limit"`
}

type serverConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

type logConfig struct {
	Level string `toml:"level" mapstructure:"level"`
}

func defaultConfig() configData {
	return configData{
		Chain: chainConfig{
			Endpoint: "ws://127.0.0.1:8545",
			ChainID:  0,
			Contract: "",
			Artifact: "",
		},
		Oracle: oracleConfig{
			Count:        21,
			FirstAccount: 1,
			Mnemonic:     DefaultMnemonic,
			MaxIndex:     10,
			Seed:         0,
		},
		Gas: gasConfig{
			RegisterLimit: 3000000,
			ResponseLimit: 6000000,
		},
		Server: serverConfig{
			Listen: "127.0.0.1:3000",
		},
		Log: logConfig{
			Level: "info",
		},
	}
}

func defaultHome() string {
	osHome, err := os.UserHomeDir()
	if err != nil {
		return ".flightoracled"
	}

	return filepath.Join(osHome, ".flightoracled")
}

func SetHome(dir string) {
	if dir != "" {
		home = dir
	}
}

func Home() string {
	return home
}

func Path() string {
	return filepath.Join(Home(), "config.toml")
}

// Load reads <home>/config.toml, writing the defaults first if the file does
// not exist. FLIGHTORACLE_<SECTION>_<KEY> environment variables override
// values from the file.
func Load() error {
	path := Path()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WriteDefault(path); err != nil {
			return fmt.Errorf("failed to create default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	loaded := defaultConfig()
	if err := v.Unmarshal(&loaded); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(loaded); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	globalConfig = loaded
	log.Infof("Loaded config from %s", path)

	return nil
}

// setDefaults registers every key with viper so environment overrides apply
// even when the key is missing from the file.
func setDefaults(v *viper.Viper) {
	d := defaultConfig()

	v.SetDefault("chain.endpoint", d.Chain.Endpoint)
	v.SetDefault("chain.chain_id", d.Chain.ChainID)
	v.SetDefault("chain.contract", d.Chain.Contract)
	v.SetDefault("chain.artifact", d.Chain.Artifact)
	v.SetDefault("oracle.count", d.Oracle.Count)
	v.SetDefault("oracle.first_account", d.Oracle.FirstAccount)
	v.SetDefault("oracle.mnemonic", d.Oracle.Mnemonic)
	v.SetDefault("oracle.max_index", d.Oracle.MaxIndex)
	v.SetDefault("oracle.seed", d.Oracle.Seed)
	v.SetDefault("gas.register_limit", d.Gas.RegisterLimit)
	v.SetDefault("gas.response_limit", d.Gas.ResponseLimit)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("log.level", d.Log.Level)
}

func WriteDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := toml.Marshal(defaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal TOML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(c configData) error {
	if c.Chain.Endpoint == "" {
		return fmt.Errorf("chain endpoint is required")
	}

	if c.Chain.Contract == "" && c.Chain.Artifact == "" {
		return fmt.Errorf("chain contract address or artifact path is required")
	}

	if c.Oracle.Count < 1 {
		return fmt.Errorf("oracle count must be at least 1")
	}

	if !bip39.IsMnemonicValid(c.Oracle.Mnemonic) {
		return fmt.Errorf("oracle mnemonic is not a valid BIP-39 mnemonic")
	}

	if c.Oracle.MaxIndex < 1 || c.Oracle.MaxIndex > 256 {
		return fmt.Errorf("oracle max index must be in [1, 256]")
	}

	if c.Gas.RegisterLimit == 0 {
		return fmt.Errorf("register gas limit is required")
	}

	if c.Gas.ResponseLimit == 0 {
		return fmt.Errorf("response gas limit is required")
	}

	if c.Server.Listen == "" {
		return fmt.Errorf("server listen address is required")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	return nil
}

func Print() {
	log.Infof("%-15s: %s", "Home", Home())
	log.Infof("%-15s: %s", "Chain Endpoint", ChainEndpoint())
	log.Infof("%-15s: %d", "Chain ID", ChainID())
	log.Infof("%-15s: %s", "Contract", ContractAddress())
	log.Infof("%-15s: %s", "Artifact", ArtifactPath())
	log.Infof("%-15s: %d", "Oracle Count", OracleCount())
	log.Infof("%-15s: %d", "First Account", FirstAccount())
	log.Infof("%-15s: %d", "Max Index", MaxIndex())
	log.Infof("%-15s: %d", "Register Gas", RegisterGasLimit())
	log.Infof("%-15s: %d", "Response Gas", ResponseGasLimit())
	log.Infof("%-15s: %s", "Listen", ServerListen())
}

func ChainEndpoint() string {
	return globalConfig.Chain.Endpoint
}

func ChainID() uint64 {
	return globalConfig.Chain.ChainID
}

func ContractAddress() string {
	return globalConfig.Chain.Contract
}

func ArtifactPath() string {
	return globalConfig.Chain.Artifact
}

func OracleCount() int {
	return globalConfig.Oracle.Count
}

func FirstAccount() uint32 {
	return globalConfig.Oracle.FirstAccount
}

func Mnemonic() string {
	return globalConfig.Oracle.Mnemonic
}

func MaxIndex() int {
	return globalConfig.Oracle.MaxIndex
}

func Seed() int64 {
	return globalConfig.Oracle.Seed
}

func RegisterGasLimit() uint64 {
	return globalConfig.Gas.RegisterLimit
}

func ResponseGasLimit() uint64 {
	return globalConfig.Gas.ResponseLimit
}

func ServerListen() string {
	return globalConfig.Server.Listen
}

func LogLevel() string {
	return globalConfig.Log.Level
}

func SetForTesting(endpoint, contract, mnemonic string, count int) {
	globalConfig = defaultConfig()
	globalConfig.Chain.Endpoint = endpoint
	globalConfig.Chain.Contract = contract
	globalConfig.Oracle.Mnemonic = mnemonic
	globalConfig.Oracle.Count = count
}
