package config

// DefaultConfigContent 默认配置文件内容，包含详细说明
const DefaultConfigContent = `# ZillaFilter 配置文件

# 过滤规则配置
filter:
  # 规则引擎：urlfilter（AdGuard urlfilter，默认）或 simple（内置引擎）
  engine: "urlfilter"
  # 内联规则（Adblock Plus 语法）
  # rules、rule_files、rule_urls 全部为空时使用内置默认规则：
  #   ||doubleclick.net^
  #   /ad.png
  rules: []
  # 本地规则文件，每行一条规则
  rule_files: []
#    - "./custom_rules.txt"
  # 远程规则列表，仅在启动时下载一次
  rule_urls: []
#    - "https://easylist.to/easylist/easylist.txt"
  # 页面来源 URL，用于 $third-party 与 $domain 判断
  default_source_url: "https://adblock-tester.com/"

# 出站请求配置
fetch:
  # 单次请求总超时（毫秒），默认 15000
  timeout_ms: 15000
  # 响应体大小上限（MB），-1 表示不限制，默认 50
  max_body_mb: 50
  # 每个主机保留的空闲连接数，默认 16
  max_idle_conns_per_host: 16

# 拦截管线配置
pipeline:
  # 被拦截请求返回的状态码：200 或 204，默认 200
  block_status: 200

# HTTP API 配置
webapi:
  # 是否启用 API（默认 true）
  enabled: true
  # 监听地址
  listen_addr: "127.0.0.1:8080"
  # 允许跨域调用 API 的来源，例如 "http://localhost:3000"
  # 为空时拒绝所有带 Origin 的跨域请求
  allowed_origins: []

# 浏览器 DevTools 拦截配置
browser:
  # 是否连接浏览器（默认 false）
  enabled: false
  # 浏览器远程调试地址（chrome --remote-debugging-port=9222）
  devtools_url: "http://127.0.0.1:9222"
  # 需要暂停的请求 URL 模式，默认 "*"
  url_pattern: "*"

# 统计配置
stats:
  # 最多跟踪的被拦截主机数量
  max_tracked_hosts: 10000
  # /api/stats 返回的热门拦截主机数量
  top_blocked_limit: 20

# 系统配置
system:
  # 日志级别：debug, info, warn, error
  log_level: "info"
`
