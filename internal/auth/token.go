package auth

import (
	"context"
	"strings"
)

// TokenSource 提供当前会话的访问令牌
// 没有会话时返回空字符串和 nil
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc 函数适配器
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token 实现 TokenSource
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticTokenSource 固定令牌，通常来自配置或环境变量
type StaticTokenSource string

// Token 实现 TokenSource
func (s StaticTokenSource) Token(context.Context) (string, error) {
	return string(s), nil
}

type tokenKey struct{}

// WithToken 把令牌放进 context，供下游的 ContextTokenSource 读取
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext 读取 WithToken 放入的令牌
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// ContextTokenSource 从 context 中取令牌（服务端转发调用方的 Bearer）
type ContextTokenSource struct{}

// Token 实现 TokenSource
func (ContextTokenSource) Token(ctx context.Context) (string, error) {
	return TokenFromContext(ctx), nil
}

// Chain 依次尝试多个来源，返回第一个非空令牌
type Chain []TokenSource

// Token 实现 TokenSource
func (c Chain) Token(ctx context.Context) (string, error) {
	var firstErr error
	for _, src := range c {
		if src == nil {
			continue
		}
		token, err := src.Token(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if token != "" {
			return token, nil
		}
	}
	return "", firstErr
}

// BearerToken 解析 Authorization 头，格式不对时返回空字符串
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
