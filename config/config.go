package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CreateDefaultConfig 创建默认配置文件
func CreateDefaultConfig(filePath string) error {
	return os.WriteFile(filePath, []byte(DefaultConfigContent), 0644)
}

// LoadConfig 从 YAML 文件加载配置，文件不存在时自动创建默认配置
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := CreateDefaultConfig(filePath); err != nil {
			return nil, err
		}
		data = []byte(DefaultConfigContent)
	}

	return Parse(data)
}

// Parse decodes YAML config data, fills defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaultValues(&cfg, data)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration produced by DefaultConfigContent.
func Default() *Config {
	cfg, err := Parse([]byte(DefaultConfigContent))
	if err != nil {
		panic(err)
	}
	return cfg
}
