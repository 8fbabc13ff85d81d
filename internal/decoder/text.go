package decoder

import (
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TextDecoder 增量 UTF-8 解码器
// 被分片截断的多字节字符会暂存在 pending 中，等下一个分片到达后再解码
type TextDecoder struct {
	t       transform.Transformer
	pending []byte
	buf     []byte
}

// NewTextDecoder 创建 UTF-8 解码器，与浏览器 TextDecoder 一致：去掉开头的 BOM，非法字节替换为 U+FFFD
func NewTextDecoder() *TextDecoder {
	return &TextDecoder{
		t:   unicode.UTF8BOM.NewDecoder(),
		buf: make([]byte, 4096),
	}
}

// Decode 解码一个分片，返回可以确定的文本
func (d *TextDecoder) Decode(p []byte) string {
	return d.decode(p, false)
}

// Flush 流结束时调用，残留的不完整字节序列输出为 U+FFFD
func (d *TextDecoder) Flush() string {
	s := d.decode(nil, true)
	d.t.Reset()
	return s
}

// Pending 返回暂存的字节数
func (d *TextDecoder) Pending() int {
	return len(d.pending)
}

func (d *TextDecoder) decode(p []byte, atEOF bool) string {
	src := p
	if len(d.pending) > 0 {
		src = append(d.pending, p...)
		d.pending = nil
	}
	if len(src) == 0 && !atEOF {
		return ""
	}

	var out strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.buf, src, atEOF)
		out.Write(d.buf[:nDst])
		src = src[nSrc:]

		switch {
		case err == nil:
			return out.String()
		case errors.Is(err, transform.ErrShortDst):
			if nDst == 0 && nSrc == 0 {
				d.buf = make([]byte, len(d.buf)*2)
			}
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append([]byte(nil), src...)
			return out.String()
		default:
			// UTF-8 解码器只会返回上面两种错误
			return out.String()
		}
	}
}
