package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitemend/pkg/contract"
	"sitemend/pkg/dom"
)

const page = `<html><head><title>SEO Audits - Digital Growth Studios</title>
<meta name="description" content="Find what holds you back."></head><body>
<div class="fusion-tb-header"><nav>menu</nav></div>
<main id="main"><div class="fusion-row"><section id="content" class="full-width"><div class="post-content">
<div class="fusion-fullwidth fullwidth-box" style="--awb-background-color:#051334;"><div class="fusion-builder-row fusion-row"><div class="fusion-layout-column"><div class="fusion-column-wrapper"><div class="fusion-title title"><h1 class="title-heading-left">SEO Audits</h1></div></div></div></div></div>
<div class="fusion-fullwidth fullwidth-box"><div class="fusion-builder-row fusion-row"><div class="fusion-layout-column"><div class="fusion-column-wrapper"><div class="fusion-text"><p>short</p></div>
<div class="fusion-fullwidth fullwidth-box"><p>nested</p></div></div></div></div></div>
<div class="fusion-fullwidth fullwidth-box rev_slider_wrapper"><rs-module><p>quote</p></rs-module></div>
</div></section></div></main>
<div class="fusion-tb-footer"><div class="fusion-fullwidth fullwidth-box"><p>foot</p></div></div>
</body></html>`

// UT-LAY-01: 区域定位与顶层 Section
func TestRegionsAndSections(t *testing.T) {
	doc, err := dom.Parse(page)
	require.NoError(t, err)
	c := Default()

	require.NotNil(t, c.Header(doc))
	require.NotNil(t, c.Footer(doc))
	region := c.ContentRegion(doc)
	require.NotNil(t, region)
	assert.True(t, region.HasClass("post-content"))

	secs := c.Sections(region)
	require.Len(t, secs, 3, "嵌套 Section 不单列")
	assert.True(t, c.ValidSection(secs[0]))
	assert.True(t, c.ValidSection(secs[1]))
	assert.False(t, c.ValidSection(secs[2]))

	assert.Len(t, c.AllSections(doc), 3, "页脚内 Section 排除")
}

// UT-LAY-02: Section 类别与实质内容
func TestKindAndSubstantial(t *testing.T) {
	doc, err := dom.Parse(page)
	require.NoError(t, err)
	c := Default()
	secs := c.Sections(c.ContentRegion(doc))

	assert.Equal(t, contract.SectionGeneric, c.Kind(secs[0]))
	assert.Equal(t, contract.SectionTestimonial, c.Kind(secs[2]))
	empty := dom.NewElement("div", dom.A("class", "fusion-fullwidth fullwidth-box"))
	assert.Equal(t, contract.SectionUnknown, c.Kind(empty))

	assert.True(t, c.Substantial(secs[0]), "含标题")
	assert.False(t, c.Substantial(secs[1]), "短文本")
}

// UT-LAY-03: 页面元信息
func TestPageMeta(t *testing.T) {
	doc, err := dom.Parse(page)
	require.NoError(t, err)
	meta := Default().PageMetaOf(doc, "services/seo/index.html")
	assert.Equal(t, "SEO Audits", meta.Title)
	assert.Equal(t, "Find what holds you back.", meta.Description)

	bare, err := dom.Parse(`<body><p>x</p></body>`)
	require.NoError(t, err)
	assert.Equal(t, "My Great Post", Default().PageMetaOf(bare, "blog/my-great_post/index.html").Title)
	assert.Equal(t, "Home", TitleFromPath("index.html"))
}

// UT-LAY-04: 构造器满足四层嵌套
func TestBuilders(t *testing.T) {
	c := Default()
	blocks := []contract.ContentBlock{
		{Kind: contract.BlockHeading, Level: 2, Text: "Overview"},
		{Kind: contract.BlockParagraph, Text: "a & b"},
		{Kind: contract.BlockList, Items: []string{"x", "y", "z"}},
	}
	sec := c.NewSection("#ffffff", MarkRestoreArchive, c.Materialize(blocks)...)
	require.True(t, c.ValidSection(sec))
	assert.Equal(t, MarkRestoreArchive, sec.Get(RepairMarker))
	assert.Equal(t, `<div class="fusion-title title"><h2 class="title-heading-left">Overview</h2></div>`,
		dom.Render(c.Wrapper(sec).ElementChildren()[0]))
	assert.Equal(t, `<div class="fusion-text"><p>a &amp; b</p></div>`, dom.Render(c.Wrapper(sec).ElementChildren()[1]))
	assert.Len(t, sec.FindAll("li"), 3)

	proto := dom.NewElement("main", dom.A("id", "main"), dom.A("class", "custom"), dom.A(RepairMarker, "x"))
	m := c.MainWrapper(proto, "Title", "", "")
	assert.Equal(t, "custom", m.Get("class"))
	assert.Equal(t, MarkMainWrapper, m.Get(RepairMarker))
	region := m.FindFirst("div", c.ContentClass)
	require.NotNil(t, region)
	secs := c.Sections(region)
	require.Len(t, secs, 1)
	assert.Equal(t, "Title", secs[0].FindFirst("h1").Text())
	assert.Nil(t, secs[0].FindFirst("p"), "无描述时不输出段落")
}

// UT-LAY-05: 零值约定补齐标题后缀；空串关闭后缀去除
func TestTitleSuffixDefaults(t *testing.T) {
	doc, err := dom.Parse(page)
	require.NoError(t, err)

	var zero Convention
	assert.Equal(t, "SEO Audits", zero.WithDefaults().PageMetaOf(doc, "a.html").Title, "零值约定使用默认后缀")

	off := Convention{TitleSuffix: Suffix("")}.WithDefaults()
	require.NotNil(t, off.TitleSuffix)
	assert.Equal(t, "SEO Audits - Digital Growth Studios", off.PageMetaOf(doc, "a.html").Title)

	custom := Convention{TitleSuffix: Suffix(" | Acme")}.WithDefaults()
	bare, err := dom.Parse(`<html><head><title>Blog | Acme</title></head><body></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "Blog", custom.PageMetaOf(bare, "a.html").Title)
}

// UT-LAY-06: 非全宽列仍识别为合法 Section；构造仍使用完整类名
func TestValidSectionColumnVariants(t *testing.T) {
	c := Default()
	half := `<div class="fusion-fullwidth fullwidth-box"><div class="fusion-builder-row fusion-row">` +
		`<div class="fusion-layout-column fusion_builder_column fusion_builder_column_1_2 1_2 fusion-flex-column">` +
		`<div class="fusion-column-wrapper"><p>x</p></div></div></div></div>`
	doc, err := dom.Parse(`<body>` + half + `</body>`)
	require.NoError(t, err)
	sec := doc.FindFirst("div", "fusion-fullwidth")
	require.NotNil(t, sec)
	assert.True(t, c.ValidSection(sec), "1_2 列应合法")

	noCol, err := dom.Parse(`<body><div class="fusion-fullwidth"><div class="fusion-row"><div class="fusion-column-wrapper"></div></div></div></body>`)
	require.NoError(t, err)
	assert.False(t, c.ValidSection(noCol.FindFirst("div", "fusion-fullwidth")), "缺少列层")

	built := c.NewSection("", MarkRestoreArchive)
	col := built.FindFirst("div", "fusion-layout-column")
	require.NotNil(t, col)
	for _, cls := range c.ColumnClasses {
		assert.True(t, col.HasClass(cls), "构造列缺少类 %s", cls)
	}
}

// UT-LAY-07: 路径标题按字符大写首字母
func TestTitleFromPathUnicode(t *testing.T) {
	assert.Equal(t, "Über Uns", TitleFromPath("über-uns/index.html"))
	assert.Equal(t, "Été 2024", TitleFromPath("blog/été_2024.html"))
	assert.Equal(t, "Seo", TitleFromPath("services/seo/"))
}
