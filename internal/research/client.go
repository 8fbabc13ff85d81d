package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cliffyan/go-research-assistant/internal/article"
	"github.com/cliffyan/go-research-assistant/internal/auth"
	"github.com/cliffyan/go-research-assistant/internal/decoder"
)

var tracer = otel.Tracer("github.com/cliffyan/go-research-assistant/internal/research")

// Outcome 搜索结果的来源
type Outcome string

const (
	// OutcomeParsed 成功解析后端返回的 JSON
	OutcomeParsed Outcome = "parsed"
	// OutcomeDecodeFallback 响应中没有可用的 JSON 行，返回原始文本
	OutcomeDecodeFallback Outcome = "decode_fallback"
	// OutcomeRequestFailed 请求没有拿到响应
	OutcomeRequestFailed Outcome = "request_failed"
)

// Result 一次搜索的结果，Articles 总是可以渲染
type Result struct {
	Query        string            `json:"query"`
	Articles     []article.Article `json:"articles"`
	TotalResults int               `json:"total_results"`
	Outcome      Outcome           `json:"outcome"`
	StatusCode   int               `json:"status_code,omitempty"`
}

// Searcher 搜索接口
type Searcher interface {
	Search(ctx context.Context, query string) Result
}

// Client 后端 /query 接口的客户端
type Client struct {
	endpoint string
	client   *http.Client
	tokens   auth.TokenSource
	decoder  *decoder.Decoder
	logger   *zap.Logger
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换默认的 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithProxy 通过代理访问后端，保留默认传输层的超时设置
func WithProxy(proxy *url.URL) Option {
	return func(c *Client) {
		if t, ok := c.client.Transport.(*http.Transport); ok {
			t.Proxy = http.ProxyURL(proxy)
		}
	}
}

// WithTokenSource 设置令牌来源
func WithTokenSource(ts auth.TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient 创建客户端，baseURL 为后端地址
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url: %q", baseURL)
	}

	c := &Client{
		endpoint: u.JoinPath("query").String(),
		// 响应是流式的，不设置整体超时，由 ctx 控制
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 2 * time.Minute,
			},
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.decoder = decoder.New(c.logger)
	return c, nil
}

// Endpoint 完整的请求地址
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Search 发送查询并解码流式响应，任何失败都会转换成占位结果
func (c *Client) Search(ctx context.Context, query string) Result {
	ctx, span := tracer.Start(ctx, "research.search", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int("research.query_length", len(query)))

	res := c.search(ctx, query)

	span.SetAttributes(
		attribute.String("research.outcome", string(res.Outcome)),
		attribute.Int("research.articles", len(res.Articles)),
	)
	if res.Outcome == OutcomeRequestFailed {
		span.SetStatus(codes.Error, "request failed")
	}
	return res
}

func (c *Client) search(ctx context.Context, query string) Result {
	// 每次请求前重新获取令牌
	token := c.token(ctx)

	resp, err := c.dispatch(ctx, query, token)
	if err != nil {
		c.logger.Error("❌ Error fetching results", zap.String("query", query), zap.Error(err))
		return Result{
			Query:    query,
			Articles: article.RequestFailedFallback(),
			Outcome:  OutcomeRequestFailed,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Warn("⚠️ Backend returned error status", zap.Int("status", resp.StatusCode))
	}

	decoded := c.decoder.Decode(ctx, decoder.FromReader(resp.Body))
	res := Result{
		Query:      query,
		Articles:   decoded.Articles,
		StatusCode: resp.StatusCode,
	}
	if decoded.Failed() {
		c.logger.Error("❌ Error reading results", zap.String("query", query), zap.Error(decoded.ReadErr))
		res.Outcome = OutcomeRequestFailed
		return res
	}
	if decoded.Fallback() {
		res.Outcome = OutcomeDecodeFallback
		return res
	}

	res.Outcome = OutcomeParsed
	res.TotalResults = int(decoded.Payload.TotalResults)
	if decoded.Payload.Query != "" {
		res.Query = decoded.Payload.Query
	}
	c.logger.Info("✅ Search completed", zap.String("query", query), zap.Int("articles", len(res.Articles)))
	return res
}

func (c *Client) token(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.Warn("⚠️ Failed to get session token, continuing without it", zap.Error(err))
		return ""
	}
	return token
}

// dispatch 发送请求，只有拿到响应才返回 nil 错误
func (c *Client) dispatch(ctx context.Context, query, token string) (*http.Response, error) {
	body, err := json.Marshal(article.SearchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}
