package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const primaryHTML = `
<html><body>
<ul class="search-result">
  <li>
    <a href="https://www.gov.cn/zhengce/a1.htm">金融政策文件一</a>
    <p class="res-des">  关于金融  五篇大文章 的通知  </p>
    <span>发布日期：2024年3月15日</span>
  </li>
  <li>
    <a href="https://www.gov.cn/zhengce/a2.htm">金融政策文件二</a>
    <p>另一份摘要</p>
  </li>
  <li><span>导航项，没有链接</span></li>
</ul>
</body></html>`

func TestParsePrimarySelector(t *testing.T) {
	t.Parallel()

	results := Parse(primaryHTML)
	require.Len(t, results, 3)

	items := Items(results)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "https://www.gov.cn/zhengce/a1.htm", first.URL)
	assert.Equal(t, "金融政策文件一", first.Title)
	assert.Equal(t, "关于金融 五篇大文章 的通知", first.Snippet)
	require.True(t, first.HasDate)
	assert.Equal(t, time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), first.Date)

	second := items[1]
	assert.Equal(t, "另一份摘要", second.Snippet)
	assert.False(t, second.HasDate)

	require.True(t, results[2].Skipped)
	assert.Equal(t, "no anchor", results[2].Reason)
}

func TestParseFallbackSelector(t *testing.T) {
	t.Parallel()

	html := `
<div class="result">
  <li><a href="/doc/1">标题一 2023-07-01</a></li>
  <li><a href="/doc/2">标题二</a></li>
</div>`
	items := Items(Parse(html))
	require.Len(t, items, 2)
	assert.Equal(t, "/doc/1", items[0].URL)
	require.True(t, items[0].HasDate)
	assert.Equal(t, time.Date(2023, time.July, 1, 0, 0, 0, 0, time.UTC), items[0].Date)
}

func TestParseBareListFallback(t *testing.T) {
	t.Parallel()

	html := `<ol><li><a href="https://example.com/x">x</a></li></ol>`
	items := Items(Parse(html))
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/x", items[0].URL)
}

func TestParseNoContainers(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Parse(`<html><body><p>nothing list-like here</p></body></html>`))
	assert.Empty(t, Parse(""))
}

func TestParseIsIdempotent(t *testing.T) {
	t.Parallel()

	a := Parse(primaryHTML)
	b := Parse(primaryHTML)
	require.Equal(t, a, b)
}

func TestParseSnippetPrefersDedicatedElement(t *testing.T) {
	t.Parallel()

	html := `
<ul class="search-result">
  <li>
    <a href="https://example.com/a">t</a>
    <p>generic paragraph</p>
    <p class="res-des">dedicated snippet</p>
  </li>
</ul>`
	items := Items(Parse(html))
	require.Len(t, items, 1)
	assert.Equal(t, "dedicated snippet", items[0].Snippet)
}
