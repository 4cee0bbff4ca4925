package webapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"zillafilter/logger"
	"zillafilter/pipeline"
)

// handleIntercept relays the pipeline response for ?url= as-is: status,
// headers and body. Block responses and failures look exactly like they
// would to an embedded browser.
func (s *Server) handleIntercept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	target := r.URL.Query().Get("url")
	if target == "" {
		s.writeJSONError(w, "Missing url parameter", http.StatusBadRequest)
		return
	}

	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}

	resp := s.pipeline.Handle(r.Context(), pipeline.Request{ID: id, URL: target})

	// CORS headers set by the middleware stay; everything else is upstream's.
	for _, h := range resp.Headers {
		if strings.HasPrefix(h.Name, "Access-Control-") {
			continue
		}
		w.Header().Add(h.Name, h.Value)
	}
	w.Header().Set("X-Request-ID", id)
	w.WriteHeader(resp.StatusCode)
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			logger.With("id", id).Debugf("[WebAPI] Client went away: %v", err)
		}
	}
}

// handleCheck 返回规则判定结果，不发起出站请求
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	target := r.URL.Query().Get("url")
	if target == "" {
		s.writeJSONError(w, "Missing url parameter", http.StatusBadRequest)
		return
	}

	req, result, err := s.pipeline.Check(target, r.URL.Query().Get("source"))
	if err != nil {
		s.writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSONSuccess(w, "", CheckResult{
		URL:          req.TargetURL,
		SourceURL:    req.SourceURL,
		ResourceType: string(req.ResourceType),
		Decision:     result.Decision.String(),
		Rule:         result.Rule,
	})
}

// handleStats 处理统计信息请求
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	if s.stats == nil {
		s.writeJSONError(w, "Stats are disabled", http.StatusServiceUnavailable)
		return
	}

	rs := s.pipeline.RuleSet()
	data := map[string]interface{}{
		"requests": s.stats.GetSnapshot(s.topK),
		"rules": map[string]interface{}{
			"engine": rs.Kind(),
			"count":  rs.Count(),
		},
	}
	if r.URL.Query().Get("system") == "true" {
		data["system"] = s.stats.GetSystemStats()
	}
	s.writeJSONSuccess(w, "", data)
}

// handleClearStats 清空统计
func (s *Server) handleClearStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	if s.stats == nil {
		s.writeJSONError(w, "Stats are disabled", http.StatusServiceUnavailable)
		return
	}
	s.stats.Reset()
	logger.Info("Stats cleared via API request.")
	s.writeJSONSuccess(w, "Stats cleared", nil)
}

// handleHealth 处理健康检查请求
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}
