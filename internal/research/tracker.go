package research

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Ticket 一次提交的搜索
type Ticket struct {
	ID    string
	Seq   uint64
	Query string
}

// Tracker 记录最近一次提交的搜索
// 解码本身不能取消，新的搜索提交后旧结果到达时直接丢弃
type Tracker struct {
	mu     sync.Mutex
	seq    uint64
	latest Ticket
}

// NewTracker 创建 Tracker
func NewTracker() *Tracker {
	return &Tracker{}
}

// Submit 登记一次新的搜索，之前的搜索都变为过期
func (t *Tracker) Submit(query string) Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	t.latest = Ticket{
		ID:    uuid.New().String(),
		Seq:   t.seq,
		Query: query,
	}
	return t.latest
}

// IsCurrent 是否仍是最近一次提交
func (t *Tracker) IsCurrent(ticket Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ticket.Seq != 0 && ticket.Seq == t.latest.Seq
}

// Run 提交并执行搜索，返回结果以及结果到达时是否仍是最新的
func (t *Tracker) Run(ctx context.Context, s Searcher, query string) (Result, bool) {
	ticket := t.Submit(query)
	res := s.Search(ctx, query)
	return res, t.IsCurrent(ticket)
}
