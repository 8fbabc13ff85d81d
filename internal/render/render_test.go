package render

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliffyan/go-research-assistant/internal/article"
)

func TestResultsPlain(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, 80, true)

	err := r.Results("transformers", []article.Article{
		{Title: "Attention", URL: "https://www.arxiv.org/abs/1706.03762", Year: "2017", Citations: "100k", Abstract: "We propose"},
		{Title: "BERT", URL: "https://aclanthology.org/N19", Source: "NAACL"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Top 2 Research Articles")
	assert.Contains(t, out, "Showing results for 'transformers'")
	assert.Contains(t, out, "Attention 📄")
	assert.Contains(t, out, "Arxiv.org • 2017 • 100k")
	assert.Contains(t, out, "We propose")
	assert.Contains(t, out, "View Article: https://www.arxiv.org/abs/1706.03762")
	assert.Contains(t, out, "NAACL\n")
}

func TestCardPlaceholderHasNoLink(t *testing.T) {
	r := New(nil, 80, true)

	card := r.Card(article.RequestFailedFallback()[0])
	assert.Contains(t, card, "Error 📄")
	assert.Contains(t, card, article.UnknownSource)
	assert.Contains(t, card, article.RequestFailedMessage)
	assert.NotContains(t, card, "View Article")
}

func TestCardStyled(t *testing.T) {
	r := New(nil, 60, false)

	card := r.Card(article.Article{Title: "Styled", URL: "https://example.com"})
	assert.Contains(t, card, "Styled")
	assert.Contains(t, card, "Example.com")
}

func TestMeta(t *testing.T) {
	assert.Equal(t, "Nature", Meta(article.Article{Source: "Nature"}))
	assert.Equal(t, "Unknown Source • 1999", Meta(article.Article{URL: "#", Year: "1999"}))
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(&buf, 0, true).JSON([]article.Article{{Title: "A&B", URL: "u", Year: "2020"}}))

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "A&B", got[0]["title"])
	assert.Equal(t, "2020", got[0]["year"])
	assert.NotContains(t, got[0], "abstract")
	assert.Contains(t, buf.String(), "A&B")
}
