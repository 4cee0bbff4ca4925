package config

// Config 应用全局配置
type Config struct {
	Filter   FilterConfig   `yaml:"filter" json:"filter"`
	Fetch    FetchConfig    `yaml:"fetch" json:"fetch"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	WebAPI   WebAPIConfig   `yaml:"webapi" json:"webapi"`
	Browser  BrowserConfig  `yaml:"browser" json:"browser"`
	Stats    StatsConfig    `yaml:"stats" json:"stats"`
	System   SystemConfig   `yaml:"system" json:"system"`
}

// FilterConfig 规则来源与引擎
type FilterConfig struct {
	// Engine selects the rule engine: "urlfilter" or "simple".
	Engine string `yaml:"engine" json:"engine"`
	// Rules are inline rules. When Rules, RuleFiles and RuleURLs are all
	// empty the built-in default list is used.
	Rules            []string `yaml:"rules" json:"rules"`
	RuleFiles        []string `yaml:"rule_files" json:"rule_files"`
	RuleURLs         []string `yaml:"rule_urls" json:"rule_urls"`
	DefaultSourceURL string   `yaml:"default_source_url" json:"default_source_url"`
}

// FetchConfig 出站请求配置
type FetchConfig struct {
	TimeoutMs           int `yaml:"timeout_ms" json:"timeout_ms"`
	MaxBodyMB           int `yaml:"max_body_mb" json:"max_body_mb"` // -1 表示不限制
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host"`
}

type PipelineConfig struct {
	// BlockStatus is the status code of synthesized block responses, 200 or 204.
	BlockStatus int `yaml:"block_status" json:"block_status"`
}

type WebAPIConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	// AllowedOrigins lists the browser origins that may call the API
	// cross-origin. Requests from any other Origin are rejected.
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// BrowserConfig DevTools 拦截配置
type BrowserConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	DevToolsURL string `yaml:"devtools_url" json:"devtools_url"`
	// URLPattern limits which requests are paused; "*" pauses everything.
	URLPattern string `yaml:"url_pattern" json:"url_pattern"`
}

type StatsConfig struct {
	MaxTrackedHosts int `yaml:"max_tracked_hosts" json:"max_tracked_hosts"`
	TopBlockedLimit int `yaml:"top_blocked_limit" json:"top_blocked_limit"`
}

type SystemConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
}
