package article

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceFromURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.nature.com/articles/x", "Nature.com"},
		{"https://arxiv.org/abs/1234", "Arxiv.org"},
		{"http://scholar.google.com", "Scholar.google.com"},
		{"https://WWW.Example.COM/Paper", "Example.com"},
		{"#", UnknownSource},
		{"not a url", UnknownSource},
		{"", UnknownSource},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SourceFromURL(tt.in))
		})
	}
}

func TestDisplaySource(t *testing.T) {
	assert.Equal(t, "IEEE", DisplaySource(Article{Source: "IEEE", URL: "https://ieee.org"}))
	assert.Equal(t, "Ieee.org", DisplaySource(Article{URL: "https://www.ieee.org/x"}))
}

func TestFlexStringAcceptsNumbers(t *testing.T) {
	var a Article
	err := json.Unmarshal([]byte(`{"title":"T","url":"u","year":2021,"citations":"1.2k"}`), &a)
	require.NoError(t, err)
	assert.Equal(t, FlexString("2021"), a.Year)
	assert.Equal(t, FlexString("1.2k"), a.Citations)

	err = json.Unmarshal([]byte(`{"title":"T","url":"u","year":null}`), &a)
	require.NoError(t, err)
	assert.Empty(t, a.Year)

	err = json.Unmarshal([]byte(`{"title":"T","url":"u","year":[1]}`), &a)
	assert.Error(t, err)
}

func TestArticleAcceptsNumericTitleAndURL(t *testing.T) {
	var a Article
	require.NoError(t, json.Unmarshal([]byte(`{"title":1984,"url":42,"source":"S","abstract":"A"}`), &a))
	assert.Equal(t, Article{Title: "1984", URL: "42", Source: "S", Abstract: "A"}, a)
}

func TestSearchResultTotalResults(t *testing.T) {
	tests := []struct {
		in   string
		want FlexInt
	}{
		{`5`, 5},
		{`5.0`, 5},
		{`"12"`, 12},
		{`null`, 0},
		{`""`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var r SearchResult
			require.NoError(t, json.Unmarshal([]byte(`{"query":"q","articles":[],"total_results":`+tt.in+`}`), &r))
			assert.Equal(t, tt.want, r.TotalResults)
		})
	}

	var r SearchResult
	assert.Error(t, json.Unmarshal([]byte(`{"total_results":"many"}`), &r))
}

func TestFallbacks(t *testing.T) {
	assert.Equal(t, []Article{{Title: "Error", URL: "#", Abstract: "Failed to fetch search results. Please try again."}}, RequestFailedFallback())
	assert.Equal(t, []Article{{Title: "Search Results", URL: "#", Abstract: "raw"}}, RawTextFallback("raw"))
}
