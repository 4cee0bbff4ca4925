package webapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"zillafilter/config"
	"zillafilter/logger"
	"zillafilter/pipeline"
	"zillafilter/stats"
)

// APIResponse 统一的 API 响应格式
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CheckResult /api/check 返回格式
type CheckResult struct {
	URL          string `json:"url"`
	SourceURL    string `json:"source_url"`
	ResourceType string `json:"resource_type"`
	Decision     string `json:"decision"`
	Rule         string `json:"rule,omitempty"`
}

// Server Web API 服务器
type Server struct {
	cfg      config.WebAPIConfig
	topK     int
	pipeline *pipeline.Pipeline
	stats    *stats.Stats

	mu       sync.Mutex
	listener *http.Server
}

// NewServer 创建新的 Web API 服务器
func NewServer(cfg *config.Config, p *pipeline.Pipeline, st *stats.Stats) *Server {
	return &Server{
		cfg:      cfg.WebAPI,
		topK:     cfg.Stats.TopBlockedLimit,
		pipeline: p,
		stats:    st,
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/intercept", s.handleIntercept)
	mux.HandleFunc("/api/check", s.handleCheck)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/stats/clear", s.handleClearStats)
	mux.HandleFunc("/health", s.handleHealth)
	if s.stats != nil {
		mux.Handle("/metrics", s.stats.Metrics().Handler())
	}

	return s.corsMiddleware(mux)
}

// Start 启动 Web API 服务，阻塞直到服务停止
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		logger.Info("WebAPI is disabled")
		return nil
	}

	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.listener = srv
	s.mu.Unlock()

	logger.Infof("Web API server started on http://%s", s.cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 优雅关闭 Web API 服务
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.listener
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
