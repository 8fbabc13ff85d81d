// Package render 把文章列表渲染成终端卡片
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cliffyan/go-research-assistant/internal/article"
)

var (
	primary = lipgloss.Color("#101F38")
	accent  = lipgloss.Color("#8BC34A")
	muted   = lipgloss.Color("#6B7280")
	danger  = lipgloss.Color("#E53935")

	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	subtitleStyle = lipgloss.NewStyle().Foreground(muted).Italic(true)
	titleStyle    = lipgloss.NewStyle().Bold(true)
	metaStyle     = lipgloss.NewStyle().Foreground(muted)
	linkStyle     = lipgloss.NewStyle().Foreground(accent).Underline(true)
	cardStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primary).
			Padding(0, 1)
	errorCardStyle = cardStyle.BorderForeground(danger)
)

// Renderer 终端渲染器
type Renderer struct {
	w     io.Writer
	width int
	plain bool
}

// New 创建渲染器，plain 为 true 时不输出样式
func New(w io.Writer, width int, plain bool) *Renderer {
	if width <= 0 {
		width = 80
	}
	return &Renderer{w: w, width: width, plain: plain}
}

// Results 渲染搜索结果
func (r *Renderer) Results(query string, articles []article.Article) error {
	var b strings.Builder

	b.WriteString(r.style(headerStyle, fmt.Sprintf("Top %d Research Articles", len(articles))))
	b.WriteString("\n")
	b.WriteString(r.style(subtitleStyle, fmt.Sprintf("Showing results for '%s'", query)))
	b.WriteString("\n\n")

	for _, a := range articles {
		b.WriteString(r.Card(a))
		b.WriteString("\n")
	}

	_, err := io.WriteString(r.w, b.String())
	return err
}

// Card 渲染单篇文章
func (r *Renderer) Card(a article.Article) string {
	lines := []string{
		r.style(titleStyle, a.Title) + " 📄",
		r.style(metaStyle, Meta(a)),
	}
	if a.Abstract != "" {
		lines = append(lines, "", r.wrap(a.Abstract))
	}
	if a.URL != "" && a.URL != article.PlaceholderURL {
		lines = append(lines, "", "View Article: "+r.style(linkStyle, a.URL))
	}
	body := strings.Join(lines, "\n")

	if r.plain {
		return body + "\n"
	}
	style := cardStyle
	if a.Title == article.ErrorTitle && a.URL == article.PlaceholderURL {
		style = errorCardStyle
	}
	return style.Width(r.width - 2).Render(body)
}

// Meta 来源、年份和引用数
func Meta(a article.Article) string {
	parts := []string{article.DisplaySource(a)}
	if a.Year != "" {
		parts = append(parts, a.Year.String())
	}
	if a.Citations != "" {
		parts = append(parts, a.Citations.String())
	}
	return strings.Join(parts, " • ")
}

// JSON 以缩进 JSON 输出
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.plain {
		return text
	}
	return s.Render(text)
}

func (r *Renderer) wrap(text string) string {
	if r.plain {
		return text
	}
	return lipgloss.NewStyle().Width(r.width - 6).Render(text)
}
