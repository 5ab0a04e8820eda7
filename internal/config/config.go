package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr             string
		Env              string
		RateLimitPerHour int64
	}
	Database struct {
		Path string
	}
	Auth struct {
		JWTSecret       string
		TokenTTLMinutes int
		CookieTTLHours  int
	}
	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	Eth struct {
		RPCURL string
	}
	Keystore struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
		// EncryptionKey is the hex encoded 32 byte AES key sealing stored
		// account material.
		EncryptionKey string
	}
	AWS struct {
		Profile string
	}
	Jobs struct {
		Workers       int
		VerifyURLBase string
	}
}

// Dev reports whether the server runs in development mode.
func (c Config) Dev() bool {
	return c.Server.Env != "production"
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("WALLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.ratelimitperhour", 100)
	v.SetDefault("database.path", "data/wallet.db")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttlminutes", 90*24*60)
	v.SetDefault("auth.cookiettlhours", 90*24)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "admin@wallet.io")
	v.SetDefault("eth.rpcurl", "")
	v.SetDefault("keystore.bucket", "")
	v.SetDefault("keystore.keyprefix", "wallet-accounts")
	v.SetDefault("keystore.region", "us-east-1")
	v.SetDefault("keystore.endpoint", "")
	v.SetDefault("keystore.encryptionkey", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.verifyurlbase", "http://localhost:8080/api/v1/users")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
