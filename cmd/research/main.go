// research 命令行客户端：搜索文章、管理登录会话、抓取文章页面
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cliffyan/go-research-assistant/internal/config"
	"github.com/cliffyan/go-research-assistant/internal/logging"
)

var (
	// 全局标志
	configPath string
	logLevel   string
	plain      bool
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "research",
	Short: "Research Assistant command line client",
	Long: `Search research articles through the Research Assistant backend.

Available commands:
  search - Search articles and render them as cards
  login  - Sign in with email and password
  signup - Create an account
  oauth  - Print the third-party sign-in URL
  logout - Remove the local session
  fetch  - Fetch article pages and extract readable text`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: search config.yaml, or CONFIG_FILE env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Disable colors and borders")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(oauthCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(fetchCmd)
}

// setup 加载配置并初始化日志
func setup(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.Load()
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	l, err := logging.NewCLI(level)
	if err != nil {
		return err
	}
	logger = l

	for _, w := range cfg.Warnings() {
		logger.Debug("⚠️ " + w)
	}
	return nil
}

func main() {
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
