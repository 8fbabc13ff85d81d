package article

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// FallbackTitle 无法解析响应时的占位标题
	FallbackTitle = "Search Results"
	// ErrorTitle 请求失败时的占位标题
	ErrorTitle = "Error"
	// RequestFailedMessage 请求失败时展示给用户的固定提示
	RequestFailedMessage = "Failed to fetch search results. Please try again."
	// PlaceholderURL 占位文章的链接
	PlaceholderURL = "#"
	// UnknownSource 无法从 URL 推断来源时的展示值
	UnknownSource = "Unknown Source"
)

// RawTextFallback 响应中没有可解析的 JSON 行时，原样保留累积文本
func RawTextFallback(text string) []Article {
	return []Article{{
		Title:    FallbackTitle,
		URL:      PlaceholderURL,
		Abstract: text,
	}}
}

// RequestFailedFallback 请求本身失败时的结果
func RequestFailedFallback() []Article {
	return []Article{{
		Title:    ErrorTitle,
		URL:      PlaceholderURL,
		Abstract: RequestFailedMessage,
	}}
}

// SourceFromURL 从 URL 中提取小写域名作为来源，去掉 www. 并首字母大写
func SourceFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return UnknownSource
	}
	host := strings.Replace(strings.ToLower(u.Hostname()), "www.", "", 1)
	r, size := utf8.DecodeRuneInString(host)
	return string(unicode.ToUpper(r)) + host[size:]
}

// DisplaySource 优先使用后端给出的来源
func DisplaySource(a Article) string {
	if a.Source != "" {
		return a.Source
	}
	return SourceFromURL(a.URL)
}
