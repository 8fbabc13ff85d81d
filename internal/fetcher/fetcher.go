package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxBodySize 单个页面最多读取的字节数
const maxBodySize = 5 * 1024 * 1024

// Page 抓取到的文章页面
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Text        string `json:"text,omitempty"`
	Via         string `json:"via,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Options 抓取选项
type Options struct {
	ProxyURL    string
	Timeout     time.Duration
	MaxText     int
	Concurrency int
	// AllowPrivate 为 false 时拒绝解析到回环、内网、链路本地地址的页面
	AllowPrivate bool
	// Browser 为 nil 时不使用浏览器兜底
	Browser *BrowserManager
}

// Fetcher 文章页面抓取
type Fetcher struct {
	client  *http.Client
	opts    Options
	browser *BrowserManager
	logger  *zap.Logger
}

// New 创建抓取器
func New(opts Options, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	jar, _ := cookiejar.New(nil)
	transport := &http.Transport{}
	if opts.ProxyURL != "" {
		if proxy, err := url.Parse(opts.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxy)
		}
	} else if !opts.AllowPrivate {
		// 直连时在建立连接前再检查一次实际地址
		dialer := &net.Dialer{Timeout: 30 * time.Second, Control: guardDial}
		transport.DialContext = dialer.DialContext
	}

	f := &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Jar:       jar,
			Transport: transport,
		},
		opts:    opts,
		browser: opts.Browser,
		logger:  logger,
	}
	f.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return f.checkHost(req.Context(), req.URL)
	}
	return f
}

// Fetch 抓取单个页面，HTTP 失败或没有正文时使用浏览器重试
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	u, err := validateURL(pageURL)
	if err != nil {
		return nil, err
	}
	if err := f.checkHost(ctx, u); err != nil {
		return nil, err
	}

	page, err := f.fetchHTTP(ctx, pageURL)
	if err == nil && page.Text != "" {
		return page, nil
	}
	if f.browser == nil {
		if err != nil {
			return nil, err
		}
		return page, nil
	}

	f.logger.Info("🌐 Falling back to browser", zap.String("url", pageURL), zap.Error(err))
	html, berr := f.browser.RenderHTML(ctx, pageURL, f.opts.Timeout)
	if berr != nil {
		if err != nil {
			return nil, errors.Join(err, berr)
		}
		// HTTP 成功但正文为空，保留已有结果
		return page, nil
	}

	rendered, perr := f.extract(pageURL, strings.NewReader(html))
	if perr != nil {
		return nil, perr
	}
	rendered.Via = "browser"
	return rendered, nil
}

// FetchAll 并发抓取多个页面，单个失败不影响其他页面
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []Page {
	pages := make([]Page, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)
	for i, u := range urls {
		g.Go(func() error {
			page, err := f.Fetch(gctx, u)
			if err != nil {
				f.logger.Warn("❌ Fetch failed", zap.String("url", u), zap.Error(err))
				pages[i] = Page{URL: u, Error: err.Error()}
				return nil
			}
			pages[i] = *page
			return nil
		})
	}
	_ = g.Wait()

	return pages
}

func (f *Fetcher) fetchHTTP(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	page, err := f.extract(pageURL, io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	page.Via = "http"
	f.logger.Debug("🔍 Fetched page", zap.String("url", pageURL), zap.Int("text", len(page.Text)))
	return page, nil
}

// extract 从 HTML 中提取标题、描述和正文
func (f *Fetcher) extract(pageURL string, r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse HTML failed: %w", err)
	}

	page := &Page{URL: pageURL}

	page.Title = firstNonEmpty(
		metaContent(doc, `meta[property="og:title"]`),
		doc.Find("title").First().Text(),
		doc.Find("h1").First().Text(),
	)
	page.Description = firstNonEmpty(
		metaContent(doc, `meta[name="description"]`),
		metaContent(doc, `meta[property="og:description"]`),
		metaContent(doc, `meta[name="citation_abstract"]`),
	)

	doc.Find("script, style, noscript, nav, header, footer, aside, form").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var paragraphs []string
	root.Find("p").Each(func(i int, s *goquery.Selection) {
		if text := collapseSpace(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		if text := collapseSpace(root.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	page.Text = truncate(strings.Join(paragraphs, "\n\n"), f.opts.MaxText)
	return page, nil
}

func validateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url %q", raw)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("missing host in url %q", raw)
	}
	return u, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return content
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = collapseSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate 按字符截断，limit <= 0 时不截断
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
