package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrNoSession 本地没有保存的会话
var ErrNoSession = errors.New("no session")

// expiryLeeway 提前刷新的时间
const expiryLeeway = 30 * time.Second

// SessionStore 把会话保存在本地 JSON 文件中
type SessionStore struct {
	path string
	mu   sync.Mutex
}

// NewSessionStore 创建会话存储
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Path 会话文件路径
func (s *SessionStore) Path() string {
	return s.path
}

// Load 读取会话
func (s *SessionStore) Load() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("read session failed: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parse session failed: %w", err)
	}
	if session.AccessToken == "" {
		return nil, ErrNoSession
	}
	return &session, nil
}

// Save 保存会话，文件权限 0600
func (s *SessionStore) Save(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session failed: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir failed: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session failed: %w", err)
	}
	return nil
}

// Clear 删除会话
func (s *SessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session failed: %w", err)
	}
	return nil
}

// Refresher 刷新会话
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// SessionTokenSource 每次调用都重新读取本地会话，过期时自动刷新
type SessionTokenSource struct {
	store     *SessionStore
	refresher Refresher
	logger    *zap.Logger
	now       func() time.Time
}

// NewSessionTokenSource 创建基于本地会话的令牌来源，refresher 可以为 nil
func NewSessionTokenSource(store *SessionStore, refresher Refresher, logger *zap.Logger) *SessionTokenSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionTokenSource{
		store:     store,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

// Token 实现 TokenSource
func (s *SessionTokenSource) Token(ctx context.Context) (string, error) {
	session, err := s.store.Load()
	if errors.Is(err, ErrNoSession) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	exp, ok := TokenExpiry(session.AccessToken)
	if !ok || s.now().Add(expiryLeeway).Before(exp) {
		return session.AccessToken, nil
	}

	if s.refresher == nil || session.RefreshToken == "" {
		s.logger.Warn("⚠️ Session expired and cannot be refreshed")
		return "", nil
	}

	s.logger.Debug("🔄 Refreshing expired session", zap.Time("expired_at", exp))
	fresh, err := s.refresher.Refresh(ctx, session.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh session failed: %w", err)
	}
	if err := s.store.Save(fresh); err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}

// TokenExpiry 读取 JWT 的 exp 声明，不校验签名
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
