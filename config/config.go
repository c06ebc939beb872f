package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

var GConfig *Config

func Init(config []byte) {
	err := yaml.Unmarshal(config, &GConfig)
	if err != nil {
		panic(err)
	}
	err = GConfig.Verify()
	if err != nil {
		panic(err)
	}
}

type Config struct {
	StorageSupplier string `yaml:"storage_supplier"`
	URLExpires      string `yaml:"url_expires"`
	LogLevel        string `yaml:"log_level"`
	LogFile         string `yaml:"log_file"`
	LogMaxSize      int    `yaml:"log_max_size"`
	LogMaxBackups   int    `yaml:"log_max_backups"`
	LogMaxAge       int    `yaml:"log_max_age"`
	AliOss          `yaml:"ali_oss"`
	MySQL           `yaml:"mysql"`
	Provider        `yaml:"provider"`
	Enhance         `yaml:"enhance"`
	Bus             `yaml:"bus"`
	Auth            `yaml:"auth"`
}

func (c *Config) Verify() error {
	if c.StorageSupplier != "ali_oss" {
		return fmt.Errorf("storage_supplier must be ali_oss")
	}
	if _, err := time.ParseDuration(c.URLExpires); err != nil {
		return fmt.Errorf("url_expires: %w", err)
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if _, err := time.ParseDuration(c.Provider.Timeout); err != nil {
		return fmt.Errorf("provider.timeout: %w", err)
	}
	if c.Provider.MaxRetries < 0 {
		return fmt.Errorf("provider.max_retries must be >= 0")
	}
	if c.Enhance.BaseURL != "" {
		if _, err := time.ParseDuration(c.Enhance.Timeout); err != nil {
			return fmt.Errorf("enhance.timeout: %w", err)
		}
	}
	if _, err := time.ParseDuration(c.Bus.IdleTimeout); err != nil {
		return fmt.Errorf("bus.idle_timeout: %w", err)
	}
	return nil
}

func (c *Config) URLExpiresDuration() time.Duration {
	d, _ := time.ParseDuration(c.URLExpires)
	return d
}

type AliOss struct {
	AccessKeyId     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Directory       string `yaml:"directory"`
}

type MySQL struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	Charset      string `yaml:"charset"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type Provider struct {
	BaseURL    string `yaml:"base_url"`
	Token      string `yaml:"token"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
}

func (p Provider) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(p.Timeout)
	return d
}

type Enhance struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
}

func (e Enhance) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(e.Timeout)
	return d
}

type Bus struct {
	IdleTimeout   string `yaml:"idle_timeout"`
	SendBufferLen int    `yaml:"send_buffer_len"`
}

func (b Bus) IdleTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(b.IdleTimeout)
	return d
}

// Auth maps bearer tokens to user ids. Stands in for the platform's
// authentication subsystem, which this service consumes as an opaque
// capability.
type Auth struct {
	Tokens map[string]string `yaml:"tokens"`
}
