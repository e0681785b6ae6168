package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// ClientConfig はgroupctlの設定を表す。
// 優先順位はコマンドラインフラグ、GROUPCTL_* 環境変数、設定ファイル、既定値の順。
type ClientConfig struct {
	APIURL   string   `toml:"api_url"`
	Group    string   `toml:"group"`
	User     string   `toml:"user"`
	Keystore string   `toml:"keystore"`
	Timeout  Duration `toml:"timeout"`
	LogLevel string   `toml:"log_level"`
	// RedisURL を設定すると read --follow が新着通知を購読する。
	RedisURL string `toml:"redis_url"`

	Sealer SealerConfig `toml:"sealer"`
}

// SealerConfig はキーストアの秘密鍵を封印する方式の設定。
// KMSKey を設定した場合はCloud KMS、それ以外はパスフレーズを使う。
type SealerConfig struct {
	KMSKey        string `toml:"kms_key"`
	PassphraseEnv string `toml:"passphrase_env"`
}

// Duration はTOMLで "10s" のように書ける time.Duration。
type Duration struct {
	time.Duration
}

// UnmarshalText は time.ParseDuration の形式を解釈する。
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// DefaultClientConfig は既定値を返す。
func DefaultClientConfig() *ClientConfig {
	keystore := "groupctl-keys.db"
	if home, err := os.UserHomeDir(); err == nil {
		keystore = filepath.Join(home, ".groupctl", "keys.db")
	}
	return &ClientConfig{
		APIURL:   "http://localhost:8080",
		Group:    "general",
		Keystore: keystore,
		Timeout:  Duration{10 * time.Second},
		LogLevel: "WARN",
		Sealer:   SealerConfig{PassphraseEnv: "GROUPCTL_PASSPHRASE"},
	}
}

// LoadClient はTOML本文を既定値の上に読み込み、環境変数で上書きする。
// 未知のキーはエラーとする。
func LoadClient(b []byte) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: undecoded keys in config file: %v", undecoded)
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadClientFile は設定ファイルを読み込む。path が空の場合は既定値と環境変数だけを使う。
func LoadClientFile(path string) (*ClientConfig, error) {
	if path == "" {
		return LoadClient(nil)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadClient(b)
}

func (c *ClientConfig) applyEnv() {
	c.APIURL = getEnv("GROUPCTL_API_URL", c.APIURL)
	c.Group = getEnv("GROUPCTL_GROUP", c.Group)
	c.User = getEnv("GROUPCTL_USER", c.User)
	c.Keystore = getEnv("GROUPCTL_KEYSTORE", c.Keystore)
	c.LogLevel = getEnv("GROUPCTL_LOG_LEVEL", c.LogLevel)
	c.RedisURL = getEnv("GROUPCTL_REDIS_URL", c.RedisURL)
	c.Sealer.KMSKey = getEnv("GROUPCTL_KMS_KEY", c.Sealer.KMSKey)
	if v, err := time.ParseDuration(os.Getenv("GROUPCTL_TIMEOUT")); err == nil {
		c.Timeout.Duration = v
	}
}
