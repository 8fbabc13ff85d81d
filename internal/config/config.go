package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	// 服务器配置
	Server ServerConfig `yaml:"server"`

	// 研究后端配置
	Backend BackendConfig `yaml:"backend"`

	// 认证服务配置
	Auth AuthConfig `yaml:"auth"`

	// 代理配置
	Proxy ProxyConfig `yaml:"proxy"`

	// MCP 配置
	MCP MCPConfig `yaml:"mcp"`

	// 浏览器配置
	Browser BrowserConfig `yaml:"browser"`

	// 文章抓取配置
	Fetcher FetcherConfig `yaml:"fetcher"`

	// 日志配置
	Log LogConfig `yaml:"log"`

	source   string
	warnings []string
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port       int           `yaml:"port"`
	Host       string        `yaml:"host"`
	CORS       CORSConfig    `yaml:"cors"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Origin  string `yaml:"origin"`
}

// BackendConfig 研究后端配置
type BackendConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig 认证服务配置
type AuthConfig struct {
	// GoTrue / Supabase 项目地址
	URL     string `yaml:"url"`
	AnonKey string `yaml:"anon_key"`
	// 固定令牌，优先级低于本地会话
	Token         string `yaml:"token"`
	SessionFile   string `yaml:"session_file"`
	OAuthRedirect string `yaml:"oauth_redirect"`
}

// ProxyConfig 代理配置
type ProxyConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// MCPConfig MCP 协议配置
type MCPConfig struct {
	// 服务器信息
	ServerName    string `yaml:"server_name"`
	ServerVersion string `yaml:"server_version"`

	// 工具名称配置
	Tools MCPToolsConfig `yaml:"tools"`
}

// MCPToolsConfig MCP 工具名称配置
type MCPToolsConfig struct {
	SearchName        string `yaml:"search_name"`
	SearchDescription string `yaml:"search_description"`
	FetchName         string `yaml:"fetch_name"`
	FetchDescription  string `yaml:"fetch_description"`
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Enabled  bool `yaml:"enabled"`
	Headless bool `yaml:"headless"`
}

// FetcherConfig 文章抓取配置
type FetcherConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxText     int           `yaml:"max_text"`
	Concurrency int           `yaml:"concurrency"`
	// AllowPrivate 允许抓取回环、内网和链路本地地址
	AllowPrivate bool `yaml:"allow_private"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig 默认配置
var DefaultConfig = &Config{
	Server: ServerConfig{
		Port: 3456,
		Host: "0.0.0.0",
		CORS: CORSConfig{
			Enabled: false,
			Origin:  "*",
		},
		SessionTTL: 30 * time.Minute,
	},
	Backend: BackendConfig{
		URL: "http://localhost:8000",
	},
	Auth: AuthConfig{
		OAuthRedirect: "http://localhost:3000",
	},
	Proxy: ProxyConfig{
		Enabled: false,
		URL:     "http://127.0.0.1:7890",
	},
	MCP: MCPConfig{
		ServerName:    "go-research-assistant",
		ServerVersion: "1.0.0",
		Tools: MCPToolsConfig{
			SearchName:        "research_search",
			SearchDescription: "Search research articles through the Research Assistant backend. Returns a list of articles with title, URL, source, year, citations and abstract.",
			FetchName:         "fetch_article",
			FetchDescription:  "Fetch one or more article pages and extract title, description and readable text for summarising.",
		},
	},
	Browser: BrowserConfig{
		Enabled:  false,
		Headless: true,
	},
	Fetcher: FetcherConfig{
		Timeout:     30 * time.Second,
		MaxText:     8000,
		Concurrency: 4,
	},
	Log: LogConfig{
		Level: "info",
	},
}

// configSearchPaths 配置文件搜索路径
var configSearchPaths = []string{
	"config.yaml",
	"config.yml",
	"configs/config.yaml",
	"configs/config.yml",
}

// 环境变量，优先级高于配置文件
const (
	EnvConfigFile   = "CONFIG_FILE"
	EnvBackendURL   = "RESEARCH_BACKEND_URL"
	EnvAuthURL      = "RESEARCH_AUTH_URL"
	EnvAuthAnonKey  = "RESEARCH_AUTH_ANON_KEY"
	EnvToken        = "RESEARCH_TOKEN"
	EnvLogLevel     = "RESEARCH_LOG_LEVEL"
	EnvPort         = "RESEARCH_PORT"
	EnvSessionFile  = "RESEARCH_SESSION_FILE"
	EnvBrowser      = "RESEARCH_BROWSER"
	EnvProxyURL     = "RESEARCH_PROXY"
	defaultEnvFile  = ".env"
	defaultLogLevel = "info"
)

// Load 加载配置：先读 .env，再读 YAML 配置文件，最后应用环境变量
// 支持通过 CONFIG_FILE 环境变量指定配置文件路径
func Load() *Config {
	// .env 不存在时忽略
	envErr := godotenv.Load(defaultEnvFile)

	cfg := *DefaultConfig
	cfg.warnings = nil
	if envErr != nil && !os.IsNotExist(envErr) {
		cfg.warn("Failed to load %s: %v", defaultEnvFile, envErr)
	}

	// 查找配置文件
	configPath := cfg.findConfigFile()
	if configPath == "" {
		cfg.warn("No config file found, using default configuration")
	} else if err := cfg.readFile(configPath); err != nil {
		cfg.warn("%v, using defaults", err)
		cfg = *DefaultConfig
		cfg.warnings = nil
	} else {
		cfg.source = configPath
	}

	cfg.applyEnv()
	cfg.validate()
	return &cfg
}

// LoadFromFile 从指定路径加载配置
func LoadFromFile(path string) (*Config, error) {
	cfg := *DefaultConfig
	cfg.warnings = nil

	if err := cfg.readFile(path); err != nil {
		return nil, err
	}
	cfg.source = path

	cfg.applyEnv()
	cfg.validate()
	return &cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// findConfigFile 查找配置文件
func (c *Config) findConfigFile() string {
	// 优先使用环境变量指定的配置文件
	if envPath := os.Getenv(EnvConfigFile); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		c.warn("CONFIG_FILE=%s not found, searching default paths", envPath)
	}

	// 获取可执行文件所在目录
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	// 获取当前工作目录
	workDir, _ := os.Getwd()

	// 搜索配置文件
	searchDirs := []string{workDir}
	if execDir != "" && execDir != workDir {
		searchDirs = append(searchDirs, execDir)
	}

	for _, dir := range searchDirs {
		for _, name := range configSearchPaths {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}

// applyEnv 应用环境变量覆盖
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv(EnvAuthURL); v != "" {
		c.Auth.URL = v
	}
	if v := os.Getenv(EnvAuthAnonKey); v != "" {
		c.Auth.AnonKey = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Auth.Token = v
	}
	if v := os.Getenv(EnvSessionFile); v != "" {
		c.Auth.SessionFile = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvProxyURL); v != "" {
		c.Proxy.Enabled = true
		c.Proxy.URL = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			c.warn("Invalid %s=%s ignored", EnvPort, v)
		} else {
			c.Server.Port = port
		}
	}
	if v := os.Getenv(EnvBrowser); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			c.warn("Invalid %s=%s ignored", EnvBrowser, v)
		} else {
			c.Browser.Enabled = enabled
		}
	}
}

// validate 验证并修正配置
func (c *Config) validate() {
	// 验证端口
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		c.warn("Invalid port %d, using default %d", c.Server.Port, DefaultConfig.Server.Port)
		c.Server.Port = DefaultConfig.Server.Port
	}

	// 验证 Host
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfig.Server.Host
	}

	// 验证 CORS Origin
	if c.Server.CORS.Origin == "" {
		c.Server.CORS.Origin = DefaultConfig.Server.CORS.Origin
	}

	if c.Server.SessionTTL <= 0 {
		c.Server.SessionTTL = DefaultConfig.Server.SessionTTL
	}

	c.Backend.URL = strings.TrimSpace(c.Backend.URL)
	if c.Backend.URL == "" {
		c.warn("Backend URL is empty, using default %s", DefaultConfig.Backend.URL)
		c.Backend.URL = DefaultConfig.Backend.URL
	}

	if c.Auth.SessionFile == "" {
		c.Auth.SessionFile = defaultSessionFile()
	}
	if c.Auth.OAuthRedirect == "" {
		c.Auth.OAuthRedirect = DefaultConfig.Auth.OAuthRedirect
	}

	// 验证代理 URL
	if c.Proxy.Enabled && c.Proxy.URL == "" {
		c.warn("Proxy enabled but URL is empty, using default")
		c.Proxy.URL = DefaultConfig.Proxy.URL
	}

	// 验证 MCP 配置
	if c.MCP.ServerName == "" {
		c.MCP.ServerName = DefaultConfig.MCP.ServerName
	}
	if c.MCP.ServerVersion == "" {
		c.MCP.ServerVersion = DefaultConfig.MCP.ServerVersion
	}
	if c.MCP.Tools.SearchName == "" {
		c.MCP.Tools.SearchName = DefaultConfig.MCP.Tools.SearchName
	}
	if c.MCP.Tools.SearchDescription == "" {
		c.MCP.Tools.SearchDescription = DefaultConfig.MCP.Tools.SearchDescription
	}
	if c.MCP.Tools.FetchName == "" {
		c.MCP.Tools.FetchName = DefaultConfig.MCP.Tools.FetchName
	}
	if c.MCP.Tools.FetchDescription == "" {
		c.MCP.Tools.FetchDescription = DefaultConfig.MCP.Tools.FetchDescription
	}
	if c.MCP.Tools.FetchName == c.MCP.Tools.SearchName {
		c.warn("Tool names collide (%s), using defaults", c.MCP.Tools.SearchName)
		c.MCP.Tools.SearchName = DefaultConfig.MCP.Tools.SearchName
		c.MCP.Tools.FetchName = DefaultConfig.MCP.Tools.FetchName
	}

	// 验证抓取配置
	if c.Fetcher.Timeout <= 0 {
		c.Fetcher.Timeout = DefaultConfig.Fetcher.Timeout
	}
	if c.Fetcher.MaxText <= 0 {
		c.Fetcher.MaxText = DefaultConfig.Fetcher.MaxText
	}
	if c.Fetcher.Concurrency <= 0 {
		c.Fetcher.Concurrency = DefaultConfig.Fetcher.Concurrency
	}

	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

func (c *Config) warn(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

// Warnings 加载过程中产生的警告
func (c *Config) Warnings() []string {
	return c.warnings
}

// Source 实际使用的配置文件，没有时为空
func (c *Config) Source() string {
	return c.source
}

// Print 打印配置信息
func (c *Config) Print(logger *zap.Logger) {
	for _, w := range c.warnings {
		logger.Warn("⚠️ " + w)
	}
	if c.source != "" {
		logger.Info("📄 Loaded configuration", zap.String("path", c.source))
	} else {
		logger.Info("💡 You can create a config.yaml file or set CONFIG_FILE environment variable")
	}
	logger.Info("🔍 Research backend", zap.String("url", c.Backend.URL))
	if c.Auth.URL != "" {
		logger.Info("🔑 Auth service", zap.String("url", c.Auth.URL))
	} else {
		logger.Info("🔑 No auth service configured")
	}
	if c.Proxy.Enabled {
		logger.Info("🌐 Using proxy", zap.String("url", c.Proxy.URL))
	}
	if c.Server.CORS.Enabled {
		logger.Info("🔒 CORS enabled", zap.String("origin", c.Server.CORS.Origin))
	} else {
		logger.Info("🔒 CORS disabled")
	}
	logger.Info("🔧 MCP Server",
		zap.String("name", c.MCP.ServerName),
		zap.String("version", c.MCP.ServerVersion),
		zap.String("search_tool", c.MCP.Tools.SearchName),
		zap.String("fetch_tool", c.MCP.Tools.FetchName))
	logger.Info("🖥️ Server address", zap.String("addr", c.Addr()))
}

// Addr 监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ProxyURL 启用代理时返回代理地址
func (c *Config) ProxyURL() string {
	if !c.Proxy.Enabled {
		return ""
	}
	return c.Proxy.URL
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "go-research-assistant", "session.json")
}
