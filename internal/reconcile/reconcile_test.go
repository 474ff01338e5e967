package reconcile

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitemend/internal/layout"
	"sitemend/pkg/contract"
	"sitemend/pkg/dom"
)

func item(file string, kind contract.ElementKind, seq int64, text string) contract.ContentItem {
	it := contract.ContentItem{SourceFile: file, Kind: kind, Sequence: seq, Text: text}
	if kind == contract.KindHeading {
		it.Level = 2
	}
	return it
}

// UT-REC-01: 标题 + 两段 → 一个标题块与一个合并段落块
func TestReconcileExample(t *testing.T) {
	archive := []contract.ContentItem{
		item("blog\\post\\index.html", contract.KindParagraph, 3, "Dolor sit..."),
		item("blog\\post\\index.html", contract.KindHeading, 1, "Overview"),
		item("blog\\post\\index.html", contract.KindParagraph, 2, "Lorem ipsum..."),
		item("blog\\other\\index.html", contract.KindParagraph, 1, "Not mine"),
	}
	got := New(Options{}).Reconcile(archive, "blog/post/index.html")
	want := []contract.ContentBlock{
		{Kind: contract.BlockHeading, Level: 2, Text: "Overview"},
		{Kind: contract.BlockParagraph, Text: "Lorem ipsum... Dolor sit..."},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("重组结果不符 (-want +got):\n%s", diff)
	}
}

// UT-REC-02: 结果与记录顺序无关
func TestReconcileOrderIndependent(t *testing.T) {
	f := "Services/SEO/index.html"
	archive := []contract.ContentItem{
		item(f, contract.KindHeading, 1, "Why SEO"),
		item(f, contract.KindParagraph, 2, "Search drives revenue."),
		item(f, contract.KindListItem, 3, "Audits"),
		item(f, contract.KindListItem, 4, "Content"),
		item(f, contract.KindListItem, 5, "Links"),
		item(f, contract.KindParagraph, 6, "Talk to us."),
		item(f, contract.KindParagraph, 6, "Same sequence, sorted by text."),
		item(f, contract.KindHeading, 7, "FAQ"),
		item(f, contract.KindListItem, 8, "Short run"),
		item(f, contract.KindParagraph, 9, "Folded in."),
	}
	r := New(Options{})
	want := r.Reconcile(archive, "services/seo/index.html")
	require.Equal(t, []contract.ContentBlock{
		{Kind: contract.BlockHeading, Level: 2, Text: "Why SEO"},
		{Kind: contract.BlockParagraph, Text: "Search drives revenue."},
		{Kind: contract.BlockList, Items: []string{"Audits", "Content", "Links"}},
		{Kind: contract.BlockParagraph, Text: "Same sequence, sorted by text. Talk to us."},
		{Kind: contract.BlockHeading, Level: 2, Text: "FAQ"},
		{Kind: contract.BlockParagraph, Text: "Short run Folded in."},
	}, want)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]contract.ContentItem(nil), archive...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if diff := cmp.Diff(want, r.Reconcile(shuffled, "services/seo/index.html")); diff != "" {
			t.Fatalf("第 %d 次打乱后结果变化:\n%s", i, diff)
		}
	}
}

// UT-REC-03: 导航残留与短 other 片段被丢弃；不同位置的相同文本保留
func TestReconcileNoise(t *testing.T) {
	f := "a.html"
	archive := []contract.ContentItem{
		item(f, contract.KindListItem, 1, "Paid Search"),
		item(f, contract.KindListItem, 2, " paid   social "),
		item(f, contract.KindParagraph, 3, "Paid Search Paid Social Amazon Ads"),
		item(f, contract.KindOther, 4, "Read more"),
		item(f, contract.KindOther, 5, "A long enough free-standing caption"),
		item(f, contract.KindParagraph, 6, "Repeated"),
		item(f, contract.KindParagraph, 7, "repeated"),
		item(f, contract.KindParagraph, 8, "   "),
	}
	got := New(Options{}).Reconcile(archive, "A.HTML")
	assert.Equal(t, []contract.ContentBlock{
		{Kind: contract.BlockParagraph, Text: "A long enough free-standing caption Repeated repeated"},
	}, got)
}

// UT-REC-06: 相同段落出现在两个标题下时各自保留；重复记录只取一次
func TestReconcileRepeatedText(t *testing.T) {
	f := "services/index.html"
	cta := "Book a free consultation today."
	archive := []contract.ContentItem{
		item(f, contract.KindHeading, 1, "SEO"),
		item(f, contract.KindParagraph, 2, cta),
		item(f, contract.KindHeading, 3, "Paid Social"),
		item(f, contract.KindParagraph, 4, cta),
		item(f, contract.KindParagraph, 4, cta),
	}
	got := New(Options{}).Reconcile(archive, "services/index.html")
	want := []contract.ContentBlock{
		{Kind: contract.BlockHeading, Level: 2, Text: "SEO"},
		{Kind: contract.BlockParagraph, Text: cta},
		{Kind: contract.BlockHeading, Level: 2, Text: "Paid Social"},
		{Kind: contract.BlockParagraph, Text: cta},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("重复文本处理不符 (-want +got):\n%s", diff)
	}
}

// UT-REC-04: 空输入返回空序列
func TestReconcileEmpty(t *testing.T) {
	r := New(Options{})
	assert.Empty(t, r.Reconcile(nil, "a.html"))
	assert.Empty(t, r.Reconcile([]contract.ContentItem{item("b.html", contract.KindParagraph, 1, "x")}, "a.html"))
	assert.Empty(t, r.Reconcile([]contract.ContentItem{item("a.html", contract.KindListItem, 1, "Amazon Ads")}, "a.html"))
}

// UT-REC-05: 参考文档内容转为片段
func TestItemsFromDocument(t *testing.T) {
	src := `<div class="post-content">` +
		`<div class="fusion-fullwidth fullwidth-box"><h1>Title</h1><p>desc</p></div>` +
		`<div class="fusion-fullwidth fullwidth-box"><h2>Overview</h2><p>Body <b>bold</b></p>` +
		`<ol><li><p>one</p></li><li>two</li><li>three</li></ol></div></div>`
	doc, err := dom.Parse(src)
	require.NoError(t, err)
	items := ItemsFromDocument(doc, layout.Default(), "x/index.html")
	require.Len(t, items, 5)
	assert.Equal(t, contract.KindHeading, items[0].Kind)
	assert.Equal(t, 2, items[0].Level)
	assert.Equal(t, "Body bold", items[1].Text)
	assert.Equal(t, "one", items[2].Text, "li 内的 p 不重复产出")
	assert.True(t, items[2].Ordered)

	blocks := New(Options{}).Reconcile(items, "x/index.html")
	assert.Equal(t, []contract.ContentBlock{
		{Kind: contract.BlockHeading, Level: 2, Text: "Overview"},
		{Kind: contract.BlockParagraph, Text: "Body bold"},
		{Kind: contract.BlockList, Ordered: true, Items: []string{"one", "two", "three"}},
	}, blocks)
}
