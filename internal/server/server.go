package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/cliffyan/go-research-assistant/internal/auth"
	"github.com/cliffyan/go-research-assistant/internal/config"
	"github.com/cliffyan/go-research-assistant/internal/mcp"
)

const (
	sessionHeader     = "mcp-session-id"
	keepaliveInterval = 30 * time.Second
	sweepSchedule     = "@every 1m"
)

// Server MCP HTTP 服务器
type Server struct {
	cfg        *config.Config
	mcpHandler *mcp.Handler
	logger     *zap.Logger

	sessions   map[string]*Session
	sessionsMu sync.RWMutex

	cron       *cron.Cron
	httpServer *http.Server
	now        func() time.Time
}

// Session 会话信息
type Session struct {
	ID        string
	CreatedAt time.Time
	LastSeen  time.Time
}

// New 创建新的服务器实例
func New(cfg *config.Config, h *mcp.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:        cfg,
		mcpHandler: h,
		logger:     logger,
		sessions:   make(map[string]*Session),
		cron:       cron.New(),
		now:        time.Now,
	}
}

// Handler 返回带认证和 CORS 中间件的路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// MCP 端点
	mux.HandleFunc("/mcp", s.handleMCP)

	// SSE 端点（兼容旧客户端）
	mux.HandleFunc("/sse", s.handleSSE)
	mux.HandleFunc("/messages", s.handleMessages)

	// 健康检查
	mux.HandleFunc("/health", s.handleHealth)

	var handler http.Handler = withBearerToken(mux)
	if s.cfg.Server.CORS.Enabled {
		c := cors.New(cors.Options{
			AllowedOrigins:   []string{s.cfg.Server.CORS.Origin},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", sessionHeader},
			ExposedHeaders:   []string{sessionHeader},
			AllowCredentials: true,
		})
		handler = c.Handler(handler)
	}
	return handler
}

// withBearerToken 把请求中的 Bearer 令牌放进 context，转发给后端
func withBearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
			r = r.WithContext(auth.WithToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}

// Start 启动 HTTP 服务器，阻塞直到 Shutdown
func (s *Server) Start() error {
	if s.cfg.Server.SessionTTL > 0 {
		if _, err := s.cron.AddFunc(sweepSchedule, func() { s.SweepSessions() }); err != nil {
			return fmt.Errorf("schedule session sweep: %w", err)
		}
		s.cron.Start()
	}

	addr := s.cfg.Addr()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("🚀 Starting MCP HTTP server", zap.String("addr", addr))
	s.logger.Info("📡 MCP endpoint", zap.String("url", fmt.Sprintf("http://%s/mcp", addr)))
	s.logger.Info("📡 SSE endpoint", zap.String("url", fmt.Sprintf("http://%s/sse", addr)))
	s.logger.Info("❤️ Health check", zap.String("url", fmt.Sprintf("http://%s/health", addr)))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止定时任务并关闭 HTTP 服务器
func (s *Server) Shutdown(ctx context.Context) error {
	<-s.cron.Stop().Done()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// SweepSessions 清理超过 TTL 未活动的会话，返回清理数量
func (s *Server) SweepSessions() int {
	ttl := s.cfg.Server.SessionTTL
	if ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-ttl)

	s.sessionsMu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.sessionsMu.Unlock()

	if removed > 0 {
		s.logger.Info("🧹 Swept idle sessions", zap.Int("removed", removed))
	}
	return removed
}

// SessionCount 当前会话数
func (s *Server) SessionCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

func (s *Server) createSession() string {
	now := s.now()
	id := uuid.NewString()
	s.sessionsMu.Lock()
	s.sessions[id] = &Session{ID: id, CreatedAt: now, LastSeen: now}
	s.sessionsMu.Unlock()
	return id
}

// touchSession 刷新会话活动时间，会话不存在时返回 false
func (s *Server) touchSession(id string) bool {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	sess, ok := s.sessions[id]
	if ok {
		sess.LastSeen = s.now()
	}
	return ok
}

func (s *Server) deleteSession(id string) {
	s.sessionsMu.Lock()
	delete(s.sessions, id)
	s.sessionsMu.Unlock()
}

// handleMCP 处理 MCP 请求
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleMCPPost(w, r, r.Header.Get(sessionHeader))
	case http.MethodGet:
		s.handleMCPGet(w, r)
	case http.MethodDelete:
		s.handleMCPDelete(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMessages 旧客户端通过 /sse 拿到的消息端点
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handleMCPPost(w, r, r.URL.Query().Get("sessionId"))
}

// handleMCPPost 处理 MCP POST 请求
func (s *Server) handleMCPPost(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req mcp.JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, nil, mcp.CodeParseError, "Parse error: "+err.Error())
		return
	}

	switch {
	case req.Method == "initialize" && sessionID == "":
		sessionID = s.createSession()
		w.Header().Set(sessionHeader, sessionID)
		s.logger.Info("📝 Created new session", zap.String("session", sessionID))
	case sessionID != "":
		s.touchSession(sessionID)
	}

	resp := s.mcpHandler.HandleRequest(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("❌ Failed to encode response", zap.Error(err))
	}
}

// handleMCPGet 处理 MCP GET 请求（SSE 流）
func (s *Server) handleMCPGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		http.Error(w, "Missing session ID", http.StatusBadRequest)
		return
	}
	if !s.touchSession(sessionID) {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	fmt.Fprintf(w, "event: endpoint\ndata: {\"uri\": \"/mcp\"}\n\n")
	flusher.Flush()

	s.keepalive(r.Context(), w, flusher, sessionID)
}

// handleMCPDelete 处理 MCP DELETE 请求（关闭会话）
func (s *Server) handleMCPDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		http.Error(w, "Missing session ID", http.StatusBadRequest)
		return
	}

	s.deleteSession(sessionID)
	s.logger.Info("🗑️ Deleted session", zap.String("session", sessionID))
	w.WriteHeader(http.StatusOK)
}

// handleSSE 处理 SSE 端点（兼容旧客户端）
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	sessionID := s.createSession()
	defer s.deleteSession(sessionID)

	fmt.Fprintf(w, "event: endpoint\ndata: /messages?sessionId=%s\n\n", sessionID)
	flusher.Flush()

	s.logger.Info("📡 SSE connection established", zap.String("session", sessionID))
	s.keepalive(r.Context(), w, flusher, sessionID)
	s.logger.Info("📡 SSE connection closed", zap.String("session", sessionID))
}

func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return flusher, true
}

// keepalive 保持连接并定期发送心跳，心跳同时刷新会话
func (s *Server) keepalive(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
			s.touchSession(sessionID)
		}
	}
}

// handleHealth 健康检查端点
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"service":  s.cfg.MCP.ServerName,
		"version":  s.cfg.MCP.ServerVersion,
		"backend":  s.cfg.Backend.URL,
		"sessions": s.SessionCount(),
	})
}

// sendError 发送错误响应
func (s *Server) sendError(w http.ResponseWriter, id any, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(mcp.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &mcp.RPCError{
			Code:    code,
			Message: message,
		},
	})
}
