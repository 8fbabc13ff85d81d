package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cliffyan/go-research-assistant/internal/config"
	"github.com/cliffyan/go-research-assistant/internal/fetcher"
	"github.com/cliffyan/go-research-assistant/internal/research"
)

const (
	MCPVersion = "2024-11-05"
)

const instructions = "Use research_search to find scholarly articles for a question, then fetch_article to read the ones worth summarising."

// PageFetcher 文章抓取接口
type PageFetcher interface {
	FetchAll(ctx context.Context, urls []string) []fetcher.Page
}

// Handler MCP 请求处理器
type Handler struct {
	cfg      config.MCPConfig
	searcher research.Searcher
	fetcher  PageFetcher
	logger   *zap.Logger
}

// NewHandler 创建 MCP 处理器，fetcher 为 nil 时抓取工具返回错误结果
func NewHandler(cfg config.MCPConfig, searcher research.Searcher, pf PageFetcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:      cfg,
		searcher: searcher,
		fetcher:  pf,
		logger:   logger,
	}
}

// HandleRequest 处理 MCP JSON-RPC 请求，通知类请求返回 nil
func (h *Handler) HandleRequest(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	h.logger.Debug("📥 MCP request", zap.String("method", req.Method), zap.Any("id", req.ID))

	if req.IsNotification() {
		return nil
	}

	var result any
	var rpcErr *RPCError

	switch req.Method {
	case "initialize":
		result = h.handleInitialize()
	case "ping":
		result = struct{}{}
	case "tools/list":
		result = ListToolsResult{Tools: Tools(h.cfg.Tools)}
	case "tools/call":
		result, rpcErr = h.handleToolsCall(ctx, req.Params)
	case "resources/list":
		result = ListResourcesResult{Resources: []any{}}
	case "prompts/list":
		result = ListPromptsResult{Prompts: []any{}}
	default:
		rpcErr = &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)}
	}

	if rpcErr != nil {
		h.logger.Warn("❌ MCP error", zap.String("method", req.Method), zap.String("error", rpcErr.Message))
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (h *Handler) handleInitialize() InitializeResult {
	return InitializeResult{
		ProtocolVersion: MCPVersion,
		Capabilities: Capability{
			Tools: ToolCapability{ListChanged: false},
		},
		ServerInfo: ServerInfo{
			Name:    h.cfg.ServerName,
			Version: h.cfg.ServerVersion,
		},
		Instructions: instructions,
	}
}

func (h *Handler) handleToolsCall(ctx context.Context, params any) (*CallToolResult, *RPCError) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("failed to marshal params: %v", err)}
	}
	var call CallToolParams
	if err := json.Unmarshal(raw, &call); err != nil {
		return nil, &RPCError{Code: CodeInvalidParams, Message: fmt.Sprintf("failed to unmarshal params: %v", err)}
	}

	h.logger.Info("🔧 Tool call", zap.String("name", call.Name))

	switch call.Name {
	case h.cfg.Tools.SearchName:
		return h.handleSearch(ctx, call.Arguments), nil
	case h.cfg.Tools.FetchName:
		return h.handleFetch(ctx, call.Arguments), nil
	default:
		return errorResult(fmt.Sprintf("Unknown tool: %s", call.Name)), nil
	}
}

// handleSearch 兜底结果也作为正常结果返回
func (h *Handler) handleSearch(ctx context.Context, args map[string]any) *CallToolResult {
	// 空字符串也是合法查询，原样转发
	query, ok := args["query"].(string)
	if !ok {
		return errorResult("query is required and must be a string")
	}

	res := h.searcher.Search(ctx, query)
	h.logger.Info("🔍 Search finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("articles", len(res.Articles)),
	)

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to format results: %v", err))
	}
	return textResult(string(out))
}

func (h *Handler) handleFetch(ctx context.Context, args map[string]any) *CallToolResult {
	if h.fetcher == nil {
		return errorResult("article fetching is disabled")
	}

	urls := fetchURLs(args)
	if len(urls) == 0 {
		return errorResult("url or urls is required")
	}

	pages := h.fetcher.FetchAll(ctx, urls)

	var payload any = pages
	if len(pages) == 1 {
		if pages[0].Error != "" {
			return errorResult(fmt.Sprintf("Fetch failed: %s", pages[0].Error))
		}
		payload = pages[0]
	}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to format pages: %v", err))
	}
	return textResult(string(out))
}

// fetchURLs 合并 url 和 urls 参数，去掉空值和重复
func fetchURLs(args map[string]any) []string {
	var candidates []string
	if u, ok := args["url"].(string); ok {
		candidates = append(candidates, u)
	}
	if list, ok := args["urls"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	}

	seen := make(map[string]bool, len(candidates))
	urls := make([]string, 0, len(candidates))
	for _, u := range candidates {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}
