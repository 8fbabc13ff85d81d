package mcp

import (
	"github.com/cliffyan/go-research-assistant/internal/config"
)

// Tools 返回 MCP 工具定义，名称和描述来自配置
func Tools(cfg config.MCPToolsConfig) []Tool {
	return []Tool{
		{
			Name:        cfg.SearchName,
			Description: cfg.SearchDescription,
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"query": {
						Type:        "string",
						Description: "Research question or keywords",
					},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        cfg.FetchName,
			Description: cfg.FetchDescription,
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"url": {
						Type:        "string",
						Description: "Article URL to fetch",
						Format:      "uri",
					},
					"urls": {
						Type:        "array",
						Description: "Several article URLs to fetch in parallel",
						Items:       &Items{Type: "string"},
					},
				},
			},
		},
	}
}
