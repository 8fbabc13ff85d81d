package research

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliffyan/go-research-assistant/internal/article"
	"github.com/cliffyan/go-research-assistant/internal/auth"
)

type recorded struct {
	method        string
	path          string
	contentType   string
	authorization string
	hasAuth       bool
	body          map[string]any
}

// newBackend 启动一个分片写出响应的后端，每个请求的内容写入返回的 channel
func newBackend(t *testing.T, status int, chunks ...string) (*httptest.Server, <-chan recorded) {
	t.Helper()
	reqs := make(chan recorded, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{}
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.contentType = r.Header.Get("Content-Type")
		_, rec.hasAuth = r.Header["Authorization"]
		rec.authorization = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec.body))
		reqs <- rec

		w.WriteHeader(status)
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			w.Write([]byte(c))
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func newClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(baseURL, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.client.CloseIdleConnections()
	})
	return c
}

func TestSearchRequestShape(t *testing.T) {
	srv, reqs := newBackend(t, http.StatusOK, `{"query":"q","articles":[],"total_results":0}`+"\n")

	c := newClient(t, srv.URL+"/", WithTokenSource(auth.StaticTokenSource("tok")))
	res := c.Search(context.Background(), "quantum computing")
	rec := <-reqs

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/query", rec.path)
	assert.Equal(t, "application/json", rec.contentType)
	assert.Equal(t, "Bearer tok", rec.authorization)
	assert.Equal(t, map[string]any{"query": "quantum computing"}, rec.body)
	assert.Equal(t, OutcomeParsed, res.Outcome)
}

func TestSearchWithoutToken(t *testing.T) {
	srv, reqs := newBackend(t, http.StatusOK, `{"query":"","articles":[],"total_results":0}`+"\n")

	failing := auth.TokenSourceFunc(func(context.Context) (string, error) {
		return "", errors.New("auth down")
	})
	for _, ts := range []auth.TokenSource{nil, auth.StaticTokenSource(""), failing} {
		c := newClient(t, srv.URL, WithTokenSource(ts))
		res := c.Search(context.Background(), "")
		rec := <-reqs

		assert.False(t, rec.hasAuth)
		assert.Equal(t, map[string]any{"query": ""}, rec.body)
		assert.Equal(t, OutcomeParsed, res.Outcome)
	}
}

func TestSearchStreamedChunks(t *testing.T) {
	payload := `{"query":"ml","articles":[{"title":"Réseaux","url":"https://arxiv.org/x","year":2020,"citations":"12"}],"total_results":7}` + "\n"
	// 在 é 的两个字节之间切开
	cut := strings.Index(payload, "é") + 1
	srv, _ := newBackend(t, http.StatusOK, "thinking...\n", payload[:cut], payload[cut:])

	res := newClient(t, srv.URL).Search(context.Background(), "ml")

	want := []article.Article{{Title: "Réseaux", URL: "https://arxiv.org/x", Year: "2020", Citations: "12"}}
	if diff := cmp.Diff(want, res.Articles); diff != "" {
		t.Fatalf("articles mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 7, res.TotalResults)
	assert.Equal(t, "ml", res.Query)
}

func TestSearchDecodeFallback(t *testing.T) {
	srv, _ := newBackend(t, http.StatusInternalServerError, "internal error\n", "{oops}\n")

	res := newClient(t, srv.URL).Search(context.Background(), "q")

	assert.Equal(t, OutcomeDecodeFallback, res.Outcome)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, article.RawTextFallback("internal error\n{oops}\n"), res.Articles)
}

func TestSearchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	res := newClient(t, addr).Search(context.Background(), "q")

	assert.Equal(t, OutcomeRequestFailed, res.Outcome)
	assert.Equal(t, []article.Article{{
		Title:    "Error",
		URL:      "#",
		Abstract: "Failed to fetch search results. Please try again.",
	}}, res.Articles)
}

func TestSearchConnectionDroppedMidStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !assert.True(t, ok) {
			return
		}
		conn, buf, err := hj.Hijack()
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		// 声明的长度比实际写出的多，随后直接断开连接
		buf.WriteString("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 1000\r\n\r\n")
		buf.WriteString(`{"query":"q","articles":[{"title":"T","url":"u"}],"total_results":1}` + "\n")
		buf.Flush()
	}))
	t.Cleanup(srv.Close)

	res := newClient(t, srv.URL).Search(context.Background(), "q")

	assert.Equal(t, OutcomeRequestFailed, res.Outcome)
	assert.Equal(t, article.RequestFailedFallback(), res.Articles)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "localhost", "://x"} {
		_, err := NewClient(u)
		assert.Error(t, err, u)
	}
}

func TestWithProxyKeepsTransportTimeouts(t *testing.T) {
	proxy, err := url.Parse("http://127.0.0.1:7890")
	require.NoError(t, err)

	c := newClient(t, "https://api.example.com", WithProxy(proxy))
	tr, ok := c.client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 2*time.Minute, tr.ResponseHeaderTimeout)

	req := httptest.NewRequest(http.MethodPost, "https://api.example.com/query", nil)
	got, err := tr.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, proxy.String(), got.String())
}

func TestEndpoint(t *testing.T) {
	c := newClient(t, "https://api.example.com/v1/")
	assert.Equal(t, "https://api.example.com/v1/query", c.Endpoint())
}
