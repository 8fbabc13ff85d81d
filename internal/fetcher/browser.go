package fetcher

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// BrowserManager 无头浏览器管理器，第一次使用时才启动 Chrome
type BrowserManager struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancelFunc  context.CancelFunc
	mu          sync.Mutex
	initialized bool
	proxyURL    string
	headless    bool
	logger      *zap.Logger
}

// NewBrowserManager 创建浏览器管理器
func NewBrowserManager(proxyURL string, headless bool, logger *zap.Logger) *BrowserManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserManager{
		proxyURL: proxyURL,
		headless: headless,
		logger:   logger,
	}
}

// findChromePath 查找 Chrome 可执行文件路径
func findChromePath() string {
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}

	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "linux":
		paths = []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	case "windows":
		paths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			os.Getenv("LOCALAPPDATA") + `\Google\Chrome\Application\chrome.exe`,
		}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// initialize 启动浏览器，调用方持有锁
func (bm *BrowserManager) initialize() error {
	if bm.initialized {
		return nil
	}

	chromePath := findChromePath()
	if chromePath == "" {
		return fmt.Errorf("chrome/chromium not found, install Chrome or set CHROME_PATH")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(chromePath),
		chromedp.Flag("headless", bm.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "en-US"),
		chromedp.WindowSize(1280, 1024),
		chromedp.UserAgent(userAgent),
	)
	if bm.proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(bm.proxyURL))
	}

	bm.allocCtx, bm.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	bm.browserCtx, bm.cancelFunc = chromedp.NewContext(bm.allocCtx,
		chromedp.WithLogf(bm.logger.Sugar().Debugf),
	)

	// 预热
	if err := chromedp.Run(bm.browserCtx); err != nil {
		bm.cancelFunc()
		bm.allocCancel()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	bm.initialized = true
	bm.logger.Info("✅ Browser initialized", zap.Bool("headless", bm.headless), zap.String("path", chromePath))
	return nil
}

// NewTabContext 创建新的标签页上下文，父 ctx 取消时标签页一并关闭
func (bm *BrowserManager) NewTabContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if err := bm.initialize(); err != nil {
		return nil, nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(bm.browserCtx)
	timeoutCtx, timeoutCancel := context.WithTimeout(tabCtx, timeout)

	stop := context.AfterFunc(parent, tabCancel)
	return timeoutCtx, func() {
		stop()
		timeoutCancel()
		tabCancel()
	}, nil
}

// RenderHTML 打开页面并返回渲染后的 HTML
func (bm *BrowserManager) RenderHTML(ctx context.Context, pageURL string, timeout time.Duration) (string, error) {
	tabCtx, cancel, err := bm.NewTabContext(ctx, timeout)
	if err != nil {
		return "", err
	}
	defer cancel()

	var html string
	bm.logger.Debug("🌐 Rendering page", zap.String("url", pageURL))
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser navigation failed: %w", err)
	}
	return html, nil
}

// Close 关闭浏览器
func (bm *BrowserManager) Close() {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if !bm.initialized {
		return
	}
	bm.cancelFunc()
	bm.allocCancel()
	bm.initialized = false
	bm.logger.Info("🔴 Browser closed")
}

// IsInitialized 检查是否已初始化
func (bm *BrowserManager) IsInitialized() bool {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.initialized
}
