package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Error 认证服务返回的错误，Error() 直接是服务端给出的提示
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// User 认证服务中的用户
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session 登录后的会话
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Client GoTrue 兼容的认证服务客户端（Supabase Auth）
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient 创建认证客户端，apiKey 为项目的 anon key
func NewClient(baseURL, apiKey string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInWithPassword 邮箱密码登录
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	if err := c.post(ctx, "/auth/v1/token?grant_type=password", credentials{email, password}, &s); err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return nil, &Error{Message: "no session returned"}
	}
	c.logger.Info("🔑 Signed in", zap.String("email", email))
	return &s, nil
}

// SignUpWithPassword 注册，开启邮箱验证时返回 nil 会话
func (c *Client) SignUpWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	if err := c.post(ctx, "/auth/v1/signup", credentials{email, password}, &s); err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		c.logger.Info("📧 Sign-up pending email confirmation", zap.String("email", email))
		return nil, nil
	}
	c.logger.Info("🔑 Signed up", zap.String("email", email))
	return &s, nil
}

// Refresh 用 refresh token 换取新的会话
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var s Session
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.post(ctx, "/auth/v1/token?grant_type=refresh_token", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SignInWithOAuth 返回第三方登录的跳转地址
func (c *Client) SignInWithOAuth(provider, redirectTo string) (string, error) {
	if provider == "" {
		return "", errors.New("provider is required")
	}
	params := url.Values{}
	params.Set("provider", provider)
	if redirectTo != "" {
		params.Set("redirect_to", redirectTo)
	}
	return fmt.Sprintf("%s/auth/v1/authorize?%s", c.baseURL, params.Encode()), nil
}

// post 发送 JSON 请求并解析响应
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	reqBody, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response failed: %w", err)
	}
	return nil
}

// parseError 兼容新旧两种错误格式
func parseError(status int, body []byte) error {
	var payload struct {
		Error            string `json:"error"`
		ErrorCode        string `json:"error_code"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)

	e := &Error{StatusCode: status, Code: payload.ErrorCode}
	if e.Code == "" {
		e.Code = payload.Error
	}
	for _, m := range []string{payload.Msg, payload.ErrorDescription, payload.Message, payload.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("auth request failed with status %d", status)
	}
	return e
}
