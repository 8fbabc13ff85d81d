package article

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Article 后端返回的单篇文章
type Article struct {
	Title     string     `json:"title"`
	URL       string     `json:"url"`
	Source    string     `json:"source,omitempty"`
	Year      FlexString `json:"year,omitempty"`
	Citations FlexString `json:"citations,omitempty"`
	Abstract  string     `json:"abstract,omitempty"`
}

// UnmarshalJSON title 和 url 为数字时同样接受
func (a *Article) UnmarshalJSON(data []byte) error {
	type plain Article
	var raw struct {
		plain
		Title FlexString `json:"title"`
		URL   FlexString `json:"url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Article(raw.plain)
	a.Title = raw.Title.String()
	a.URL = raw.URL.String()
	return nil
}

// SearchResult 后端 /query 的结果载荷
type SearchResult struct {
	Query        string    `json:"query"`
	Articles     []Article `json:"articles"`
	TotalResults FlexInt   `json:"total_results"`
}

// SearchRequest /query 请求体
type SearchRequest struct {
	Query string `json:"query"`
}

// FlexString 接受 JSON 字符串或数字，始终以字符串输出
// 后端对 year / citations 的类型并不稳定
type FlexString string

// UnmarshalJSON 实现 json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

// String 返回字符串值
func (f FlexString) String() string {
	return string(f)
}

// FlexInt 接受整数、带小数点的数字或数字字符串
type FlexInt int

// UnmarshalJSON 实现 json.Unmarshaler
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			*f = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("expected a number, got %s", data)
	}
	*f = FlexInt(v)
	return nil
}
