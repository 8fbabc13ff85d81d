package decoder

import (
	"context"
	"io"
)

// DefaultFragmentSize 从 io.Reader 拉取分片时的缓冲区大小
const DefaultFragmentSize = 32 * 1024

// Source 按到达顺序依次产出字节分片，结束时返回 io.EOF
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// readerSource 把 io.Reader（通常是 HTTP 响应体）适配为 Source
type readerSource struct {
	r   io.Reader
	buf []byte
	eof bool
}

// FromReader 包装 io.Reader，每次 Read 得到的数据就是一个分片
func FromReader(r io.Reader) Source {
	return &readerSource{r: r, buf: make([]byte, DefaultFragmentSize)}
}

func (s *readerSource) Next(ctx context.Context) ([]byte, error) {
	if s.eof {
		return nil, io.EOF
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.r.Read(s.buf)
		if err == io.EOF {
			s.eof = true
		}
		if n > 0 {
			// 分片交给调用方，缓冲区下一次会被覆盖
			return s.buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Fragments 内存中的分片序列，用于离线解码和测试
type Fragments [][]byte

// Source 返回按顺序产出分片的 Source
func (f Fragments) Source() Source {
	return &fragmentSource{fragments: f}
}

type fragmentSource struct {
	fragments Fragments
	next      int
}

func (s *fragmentSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.fragments) {
		return nil, io.EOF
	}
	p := s.fragments[s.next]
	s.next++
	return p, nil
}
