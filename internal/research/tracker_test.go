package research

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/cliffyan/go-research-assistant/internal/article"
)

func TestTrackerLatestWins(t *testing.T) {
	tr := NewTracker()

	assert.False(t, tr.IsCurrent(Ticket{}))

	first := tr.Submit("a")
	assert.True(t, tr.IsCurrent(first))

	second := tr.Submit("b")
	assert.False(t, tr.IsCurrent(first))
	assert.True(t, tr.IsCurrent(second))
	assert.NotEqual(t, first.ID, second.ID)
	assert.Greater(t, second.Seq, first.Seq)
	assert.Equal(t, "b", second.Query)
}

// blockingSearcher 等待 release 后才返回结果
type blockingSearcher struct {
	started chan string
	release map[string]chan struct{}
}

func (b *blockingSearcher) Search(_ context.Context, query string) Result {
	b.started <- query
	<-b.release[query]
	return Result{Query: query, Articles: []article.Article{{Title: query, URL: "#"}}}
}

func TestTrackerRunDiscardsStale(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tr := NewTracker()
	s := &blockingSearcher{
		started: make(chan string),
		release: map[string]chan struct{}{"old": make(chan struct{}), "new": make(chan struct{})},
	}

	type outcome struct {
		res     Result
		current bool
	}
	results := make(map[string]outcome)
	var mu sync.Mutex
	var wg sync.WaitGroup
	run := func(q string) {
		defer wg.Done()
		res, current := tr.Run(context.Background(), s, q)
		mu.Lock()
		results[q] = outcome{res, current}
		mu.Unlock()
	}

	wg.Add(2)
	go run("old")
	<-s.started
	go run("new")
	<-s.started

	// 旧请求后到
	close(s.release["new"])
	close(s.release["old"])
	wg.Wait()

	assert.True(t, results["new"].current)
	assert.False(t, results["old"].current)
	assert.Equal(t, "old", results["old"].res.Query)
}
