// Package app 按配置组装各个组件，供 server 和 research 两个命令共用
package app

import (
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/cliffyan/go-research-assistant/internal/auth"
	"github.com/cliffyan/go-research-assistant/internal/config"
	"github.com/cliffyan/go-research-assistant/internal/fetcher"
	"github.com/cliffyan/go-research-assistant/internal/research"
)

// AuthClient 未配置认证服务时返回错误
func AuthClient(cfg *config.Config, logger *zap.Logger) (*auth.Client, error) {
	if cfg.Auth.URL == "" {
		return nil, fmt.Errorf("auth service not configured, set auth.url or %s", config.EnvAuthURL)
	}
	return auth.NewClient(cfg.Auth.URL, cfg.Auth.AnonKey, logger), nil
}

// SessionStore 本地会话文件
func SessionStore(cfg *config.Config) *auth.SessionStore {
	return auth.NewSessionStore(cfg.Auth.SessionFile)
}

// CLITokenSource 命令行的令牌优先级：本地会话 > 配置中的固定令牌
func CLITokenSource(cfg *config.Config, logger *zap.Logger) auth.TokenSource {
	var refresher auth.Refresher
	if client, err := AuthClient(cfg, logger); err == nil {
		refresher = client
	}
	return auth.Chain{
		auth.NewSessionTokenSource(SessionStore(cfg), refresher, logger),
		auth.StaticTokenSource(cfg.Auth.Token),
	}
}

// ServerTokenSource 服务端只使用调用方的请求头和配置中的固定令牌，不读取本地会话
func ServerTokenSource(cfg *config.Config) auth.TokenSource {
	return auth.Chain{
		auth.ContextTokenSource{},
		auth.StaticTokenSource(cfg.Auth.Token),
	}
}

// ResearchClient 创建研究后端客户端
func ResearchClient(cfg *config.Config, tokens auth.TokenSource, logger *zap.Logger) (*research.Client, error) {
	opts := []research.Option{
		research.WithTokenSource(tokens),
		research.WithLogger(logger),
	}
	if proxy := cfg.ProxyURL(); proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		opts = append(opts, research.WithProxy(u))
	}
	return research.NewClient(cfg.Backend.URL, opts...)
}

// Fetcher 创建文章抓取器，返回的 close 函数负责关闭浏览器
func Fetcher(cfg *config.Config, logger *zap.Logger) (*fetcher.Fetcher, func()) {
	opts := fetcher.Options{
		ProxyURL:     cfg.ProxyURL(),
		Timeout:      cfg.Fetcher.Timeout,
		MaxText:      cfg.Fetcher.MaxText,
		Concurrency:  cfg.Fetcher.Concurrency,
		AllowPrivate: cfg.Fetcher.AllowPrivate,
	}
	closeFn := func() {}
	if cfg.Browser.Enabled {
		bm := fetcher.NewBrowserManager(cfg.ProxyURL(), cfg.Browser.Headless, logger)
		opts.Browser = bm
		closeFn = bm.Close
	}
	return fetcher.New(opts, logger), closeFn
}
