package decoder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/cliffyan/go-research-assistant/internal/article"
)

// Result 一次解码的最终结果，Articles 总是可以直接渲染
type Result struct {
	// Articles 解析成功时为后端返回的文章，否则为单条占位文章
	Articles []article.Article
	// Payload 解析成功时的完整载荷，回退时为 nil
	Payload *article.SearchResult
	// Text 累积的全部文本
	Text string
	// ReadErr 读取过程中遇到的非 EOF 错误，此时 Articles 为请求失败的占位文章
	ReadErr error
}

// Fallback 是否使用了占位结果
func (r Result) Fallback() bool {
	return r.Payload == nil
}

// Failed 响应流是否中途出错
func (r Result) Failed() bool {
	return r.ReadErr != nil
}

// Decoder 流式响应解码器
type Decoder struct {
	logger *zap.Logger
}

// New 创建解码器
func New(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger}
}

// Decode 读完整个流，取第一行以 { 开头的 JSON 作为结果
func (d *Decoder) Decode(ctx context.Context, src Source) Result {
	text, err := Accumulate(ctx, src)
	res := Result{Text: text, ReadErr: err}
	if err != nil {
		// 流没有正常结束，按请求失败处理，不解析已收到的部分
		d.logger.Warn("⚠️ Response stream ended early", zap.Error(err), zap.Int("bytes", len(text)))
		res.Articles = article.RequestFailedFallback()
		return res
	}

	payload, found, perr := ExtractPayload(text)
	switch {
	case found && perr == nil:
		res.Payload = payload
		res.Articles = payload.Articles
		if res.Articles == nil {
			res.Articles = []article.Article{}
		}
		d.logger.Debug("✅ Parsed search result", zap.String("query", payload.Query), zap.Int("articles", len(payload.Articles)))
	case found:
		d.logger.Info("⚠️ Could not parse JSON response, using fallback display", zap.Error(perr))
		res.Articles = article.RawTextFallback(text)
	default:
		d.logger.Info("⚠️ No JSON line in response, using fallback display", zap.Int("bytes", len(text)))
		res.Articles = article.RawTextFallback(text)
	}
	return res
}

// Accumulate 按顺序拉取所有分片并解码为文本
// 读取出错时返回已累积的文本和该错误
func Accumulate(ctx context.Context, src Source) (string, error) {
	var (
		buf strings.Builder
		td  = NewTextDecoder()
	)
	for {
		p, err := src.Next(ctx)
		if len(p) > 0 {
			buf.WriteString(td.Decode(p))
		}
		if err != nil {
			buf.WriteString(td.Flush())
			if errors.Is(err, io.EOF) {
				return buf.String(), nil
			}
			return buf.String(), err
		}
	}
}

// ExtractPayload 找到第一行 JSON 形状的文本并解析
// found 表示是否存在这样的行；无论解析是否成功都只看第一行
func ExtractPayload(text string) (payload *article.SearchResult, found bool, err error) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var res article.SearchResult
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			return nil, true, err
		}
		return &res, true, nil
	}
	return nil, false, nil
}
