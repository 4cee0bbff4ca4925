package config

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	"zillafilter/adblock"
)

const (
	defaultTimeoutMs           = 15000
	defaultMaxBodyMB           = 50
	defaultMaxIdleConnsPerHost = 16
	defaultSourceURL           = "https://adblock-tester.com/"
	defaultListenAddr          = "127.0.0.1:8080"
	defaultDevToolsURL         = "http://127.0.0.1:9222"
)

// setDefaultValues 设置配置文件中缺失字段的默认值
func setDefaultValues(cfg *Config, rawData []byte) {
	if cfg.Filter.Engine == "" {
		cfg.Filter.Engine = string(adblock.EngineURLFilter)
	}
	cfg.Filter.Engine = strings.ToLower(strings.TrimSpace(cfg.Filter.Engine))
	if cfg.Filter.DefaultSourceURL == "" {
		cfg.Filter.DefaultSourceURL = defaultSourceURL
	}

	if cfg.Fetch.TimeoutMs == 0 {
		cfg.Fetch.TimeoutMs = defaultTimeoutMs
	}
	if cfg.Fetch.MaxBodyMB == 0 {
		cfg.Fetch.MaxBodyMB = defaultMaxBodyMB
	}
	if cfg.Fetch.MaxIdleConnsPerHost == 0 {
		cfg.Fetch.MaxIdleConnsPerHost = defaultMaxIdleConnsPerHost
	}

	if cfg.Pipeline.BlockStatus == 0 {
		cfg.Pipeline.BlockStatus = http.StatusOK
	}

	// webapi.enabled 缺省为 true，显式写 false 时保留
	if !cfg.WebAPI.Enabled && !isExplicitlySet(rawData, "webapi", "enabled") {
		cfg.WebAPI.Enabled = true
	}
	if cfg.WebAPI.ListenAddr == "" {
		cfg.WebAPI.ListenAddr = defaultListenAddr
	}

	if cfg.Browser.DevToolsURL == "" {
		cfg.Browser.DevToolsURL = defaultDevToolsURL
	}
	if cfg.Browser.URLPattern == "" {
		cfg.Browser.URLPattern = "*"
	}

	if cfg.Stats.MaxTrackedHosts == 0 {
		cfg.Stats.MaxTrackedHosts = 10000
	}
	if cfg.Stats.TopBlockedLimit == 0 {
		cfg.Stats.TopBlockedLimit = 20
	}

	if cfg.System.LogLevel == "" {
		cfg.System.LogLevel = "info"
	}
}

// isExplicitlySet reports whether section.key is present in the raw YAML,
// which separates an omitted bool from an explicit false.
func isExplicitlySet(rawData []byte, section, key string) bool {
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(rawData, &raw); err != nil {
		return false
	}
	_, ok := raw[section][key]
	return ok
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	switch adblock.EngineKind(c.Filter.Engine) {
	case adblock.EngineURLFilter, adblock.EngineSimple:
	default:
		return fmt.Errorf("filter.engine: %w: %q", adblock.ErrUnknownEngine, c.Filter.Engine)
	}
	if _, ok := adblock.ParseTarget(c.Filter.DefaultSourceURL); !ok {
		return fmt.Errorf("filter.default_source_url: invalid url %q", c.Filter.DefaultSourceURL)
	}
	for _, u := range c.Filter.RuleURLs {
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("filter.rule_urls: invalid url %q", u)
		}
	}

	if c.Fetch.TimeoutMs < 0 {
		return fmt.Errorf("fetch.timeout_ms must be positive, got %d", c.Fetch.TimeoutMs)
	}
	if c.Fetch.MaxBodyMB < -1 {
		return fmt.Errorf("fetch.max_body_mb must be -1 or positive, got %d", c.Fetch.MaxBodyMB)
	}
	if c.Fetch.MaxIdleConnsPerHost < 0 {
		return fmt.Errorf("fetch.max_idle_conns_per_host must be positive, got %d", c.Fetch.MaxIdleConnsPerHost)
	}

	if c.Pipeline.BlockStatus != http.StatusOK && c.Pipeline.BlockStatus != http.StatusNoContent {
		return fmt.Errorf("pipeline.block_status must be 200 or 204, got %d", c.Pipeline.BlockStatus)
	}

	if c.WebAPI.Enabled {
		if _, _, err := net.SplitHostPort(c.WebAPI.ListenAddr); err != nil {
			return fmt.Errorf("webapi.listen_addr: %w", err)
		}
		for _, origin := range c.WebAPI.AllowedOrigins {
			parsed, err := url.Parse(origin)
			if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" || parsed.Path != "" {
				return fmt.Errorf("webapi.allowed_origins: invalid origin %q", origin)
			}
		}
	}

	if c.Browser.Enabled {
		parsed, err := url.Parse(c.Browser.DevToolsURL)
		if err != nil || parsed.Host == "" {
			return fmt.Errorf("browser.devtools_url: invalid url %q", c.Browser.DevToolsURL)
		}
	}

	if c.Stats.MaxTrackedHosts < 0 || c.Stats.TopBlockedLimit < 0 {
		return fmt.Errorf("stats limits must not be negative")
	}

	switch strings.ToLower(c.System.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("system.log_level: unknown level %q", c.System.LogLevel)
	}
	return nil
}
