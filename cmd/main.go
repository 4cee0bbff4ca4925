package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"zillafilter/adblock"
	"zillafilter/browser"
	"zillafilter/config"
	"zillafilter/fetcher"
	"zillafilter/logger"
	"zillafilter/pipeline"
	"zillafilter/stats"
	"zillafilter/webapi"
)

func main() {
	// 定义命令行参数
	configPath := flag.String("c", "config.yaml", "配置文件路径")
	workDir := flag.String("w", "", "工作目录")
	checkURL := flag.String("check", "", "仅输出指定 URL 的拦截判定后退出")
	help := flag.Bool("h", false, "显示帮助信息")

	flag.Parse()

	if *help {
		printHelp()
		os.Exit(0)
	}

	// 确定工作目录和配置文件路径
	effectiveWorkDir := *workDir
	if effectiveWorkDir == "" {
		var err error
		effectiveWorkDir, err = os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "错误：无法获取当前工作目录：%v\n", err)
			os.Exit(1)
		}
	}

	effectiveConfigPath := *configPath
	if !filepath.IsAbs(effectiveConfigPath) {
		effectiveConfigPath = filepath.Join(effectiveWorkDir, effectiveConfigPath)
	}

	cfg, err := config.LoadConfig(effectiveConfigPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// 立即设置日志级别，确保后续所有日志都遵循配置
	logger.SetLevel(cfg.System.LogLevel)
	logger.Infof("Config loaded from %s, log level %s", effectiveConfigPath, logger.GetLevel())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 规则编译失败直接退出，不回落到空规则集
	src := buildRuleSource(cfg, effectiveWorkDir)
	rs, err := adblock.LoadRuleSet(ctx, src, adblock.EngineKind(cfg.Filter.Engine))
	if err != nil {
		logger.Fatalf("Failed to build rule set: %v", err)
	}

	st := stats.NewStats(cfg.Stats.MaxTrackedHosts)
	f := fetcher.New(fetcher.Options{
		Timeout:             time.Duration(cfg.Fetch.TimeoutMs) * time.Millisecond,
		MaxBodyBytes:        maxBodyBytes(cfg.Fetch.MaxBodyMB),
		MaxIdleConnsPerHost: cfg.Fetch.MaxIdleConnsPerHost,
	})
	defer f.CloseIdleConnections()

	p := pipeline.New(rs, f, st, pipeline.Options{
		DefaultSourceURL: cfg.Filter.DefaultSourceURL,
		BlockStatus:      cfg.Pipeline.BlockStatus,
	})

	if *checkURL != "" {
		os.Exit(runCheck(p, *checkURL))
	}

	// 启动 Web API 服务（可选）
	var webServer *webapi.Server
	webServerDone := make(chan error, 1)
	if cfg.WebAPI.Enabled {
		webServer = webapi.NewServer(cfg, p, st)
		go func() {
			webServerDone <- webServer.Start()
		}()
	}

	// 连接浏览器（可选）
	var interceptor *browser.Interceptor
	interceptorDone := make(chan error, 1)
	if cfg.Browser.Enabled {
		interceptor = browser.New(cfg.Browser.DevToolsURL, cfg.Browser.URLPattern, p)
		if err := interceptor.Attach(ctx); err != nil {
			logger.Fatalf("Failed to attach to browser at %s: %v", cfg.Browser.DevToolsURL, err)
		}
		logger.Infof("Intercepting requests of target %s", interceptor.Target())
		go func() {
			interceptorDone <- interceptor.Run(ctx)
		}()
	}

	fmt.Printf("ZillaFilter started: %d rules (%s engine)\n", rs.Count(), rs.Kind())

	select {
	case <-ctx.Done():
	case err := <-webServerDone:
		if err != nil {
			logger.Errorf("Web API server stopped: %v", err)
		}
	case err := <-interceptorDone:
		if err != nil {
			logger.Errorf("Browser interceptor stopped: %v", err)
		}
	}

	logger.Info("Shutting down...")

	if interceptor != nil {
		logger.Info("Detaching from browser...")
		if err := interceptor.Close(); err != nil {
			logger.Errorf("Failed to detach from browser: %v", err)
		}
	}

	if webServer != nil {
		logger.Info("Stopping Web API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := webServer.Stop(shutdownCtx); err != nil {
			logger.Errorf("Failed to stop Web API server: %v", err)
		}
		cancel()
	}

	logger.Info("Gracefully stopped.")
}

// buildRuleSource 按配置组合规则来源，未配置任何来源时使用内置默认规则
func buildRuleSource(cfg *config.Config, workDir string) adblock.RuleSource {
	var sources adblock.MultiSource
	if len(cfg.Filter.Rules) > 0 {
		sources = append(sources, adblock.StaticSource(cfg.Filter.Rules))
	}
	for _, path := range cfg.Filter.RuleFiles {
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}
		sources = append(sources, adblock.FileSource{Path: path})
	}
	for _, u := range cfg.Filter.RuleURLs {
		sources = append(sources, adblock.NewHTTPSource(u))
	}

	if len(sources) == 0 {
		return adblock.StaticSource(adblock.DefaultRules)
	}
	return sources
}

func maxBodyBytes(mb int) int64 {
	if mb < 0 {
		return -1
	}
	return int64(mb) * 1024 * 1024
}

// runCheck 输出单个 URL 的判定结果，返回进程退出码
func runCheck(p *pipeline.Pipeline, rawURL string) int {
	req, result, err := p.Check(rawURL, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误：%v\n", err)
		return 2
	}
	fmt.Printf("url:      %s\n", req.TargetURL)
	fmt.Printf("type:     %s\n", req.ResourceType)
	fmt.Printf("decision: %s\n", result.Decision)
	if result.Rule != "" {
		fmt.Printf("rule:     %s\n", result.Rule)
	}
	if result.Blocked() {
		return 1
	}
	return 0
}

func printHelp() {
	fmt.Print(`ZillaFilter - 广告拦截请求拦截服务

使用方法：
  zillafilter [选项]

选项：
  -c <路径>       配置文件路径（默认：config.yaml）
  -w <路径>       工作目录（默认：当前目录）
  -check <URL>    输出 URL 的拦截判定后退出（拦截时退出码为 1）
  -h              显示此帮助信息

示例：
  # 启动服务
  zillafilter -c /etc/zillafilter/config.yaml

  # 连接浏览器：先以 --remote-debugging-port=9222 启动 Chromium，
  # 再在配置中设置 browser.enabled: true

  # 检查单个 URL
  zillafilter -check https://ads.doubleclick.net/x
`)
}
