package webapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
)

// writeJSONError 写入 JSON 错误响应
func (s *Server) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Message: message,
	})
}

// writeJSONSuccess 写入 JSON 成功响应
func (s *Server) writeJSONSuccess(w http.ResponseWriter, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// corsMiddleware CORS 中间件
// /api/intercept fetches arbitrary URLs, so a request carrying a foreign
// Origin is refused outright and CORS headers are only granted to origins
// listed in webapi.allowed_origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Origin")
		origin := r.Header.Get("Origin")
		if origin != "" && !sameOrigin(origin, s.cfg.ListenAddr) {
			if !slices.Contains(s.cfg.AllowedOrigins, origin) {
				s.writeJSONError(w, "Origin not allowed", http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sameOrigin reports whether origin is the API's own listen address.
// The request Host header is not trusted here since it follows DNS.
func sameOrigin(origin, listenAddr string) bool {
	u, err := url.Parse(origin)
	return err == nil && u.Host != "" && u.Host == listenAddr
}
