// Package layout 描述站点的嵌套 Section 约定：
// FullWidthBlock → Row → Column → Wrapper，以及页头、内容区与主包裹的定位方式。
package layout

import (
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"sitemend/pkg/contract"
	"sitemend/pkg/dom"
)

// RepairMarker 记录插入节点由哪条修复路径产生。
const RepairMarker = "data-repair"

// 修复路径标记值。
const (
	MarkRestoreArchive   = "restore-archive"
	MarkRestoreReference = "restore-reference"
	MarkRestoreGenerated = "restore-generated"
	MarkMainWrapper      = "main-wrapper"
	MarkHeader           = "header-reference"
)

// Convention: 类名约定（可由配置覆盖）。零值字段使用 Default 中的值。
type Convention struct {
	HeaderClass    string   `json:"header_class" yaml:"header_class"`
	FooterClass    string   `json:"footer_class" yaml:"footer_class"`
	ContentClass   string   `json:"content_class" yaml:"content_class"`
	SectionClasses []string `json:"section_classes" yaml:"section_classes"`
	RowClasses     []string `json:"row_classes" yaml:"row_classes"`
	ColumnClasses  []string `json:"column_classes" yaml:"column_classes"`
	// RowMatch/ColumnMatch: 识别已有行/列所需的类；构建新节点使用 RowClasses/ColumnClasses。
	RowMatch           []string `json:"row_match" yaml:"row_match"`
	ColumnMatch        []string `json:"column_match" yaml:"column_match"`
	WrapperClass       string   `json:"wrapper_class" yaml:"wrapper_class"`
	TitleClasses       []string `json:"title_classes" yaml:"title_classes"`
	HeadingClass       string   `json:"heading_class" yaml:"heading_class"`
	TextClass          string   `json:"text_class" yaml:"text_class"`
	TestimonialMarkers []string `json:"testimonial_markers" yaml:"testimonial_markers"`
	TestimonialTags    []string `json:"testimonial_tags" yaml:"testimonial_tags"`
	// TitleSuffix: 从 <title> 去掉的站点后缀；nil 使用默认值，空串表示不去除。
	TitleSuffix *string `json:"title_suffix" yaml:"title_suffix"`
	// ThinTextChars: 无标题/图片的 Section 文本不超过该长度视为“空壳”。
	ThinTextChars int `json:"thin_text_chars" yaml:"thin_text_chars"`
}

// Default 返回站点构建器的默认约定。
func Default() Convention {
	return Convention{
		HeaderClass:    "fusion-tb-header",
		FooterClass:    "fusion-tb-footer",
		ContentClass:   "post-content",
		SectionClasses: []string{"fusion-fullwidth", "fullwidth-box"},
		RowClasses:     []string{"fusion-builder-row", "fusion-row"},
		ColumnClasses: []string{"fusion-layout-column", "fusion_builder_column",
			"fusion_builder_column_1_1", "1_1", "fusion-flex-column"},
		RowMatch:           []string{"fusion-row"},
		ColumnMatch:        []string{"fusion-layout-column"},
		WrapperClass:       "fusion-column-wrapper",
		TitleClasses:       []string{"fusion-title", "title"},
		HeadingClass:       "title-heading-left",
		TextClass:          "fusion-text",
		TestimonialMarkers: []string{"rev_slider", "testimonial"},
		TestimonialTags:    []string{"rs-module", "rs-module-wrap"},
		TitleSuffix:        Suffix(" - Digital Growth Studios"),
		ThinTextChars:      200,
	}
}

// Suffix 返回 TitleSuffix 字段值。
func Suffix(s string) *string { return &s }

// WithDefaults 以默认值补齐零值字段。
func (c Convention) WithDefaults() Convention {
	d := Default()
	if c.HeaderClass == "" {
		c.HeaderClass = d.HeaderClass
	}
	if c.FooterClass == "" {
		c.FooterClass = d.FooterClass
	}
	if c.ContentClass == "" {
		c.ContentClass = d.ContentClass
	}
	if len(c.SectionClasses) == 0 {
		c.SectionClasses = d.SectionClasses
	}
	if len(c.RowClasses) == 0 {
		c.RowClasses = d.RowClasses
	}
	if len(c.ColumnClasses) == 0 {
		c.ColumnClasses = d.ColumnClasses
	}
	if len(c.RowMatch) == 0 {
		c.RowMatch = d.RowMatch
	}
	if len(c.ColumnMatch) == 0 {
		c.ColumnMatch = d.ColumnMatch
	}
	if c.TitleSuffix == nil {
		c.TitleSuffix = d.TitleSuffix
	}
	if c.WrapperClass == "" {
		c.WrapperClass = d.WrapperClass
	}
	if len(c.TitleClasses) == 0 {
		c.TitleClasses = d.TitleClasses
	}
	if c.HeadingClass == "" {
		c.HeadingClass = d.HeadingClass
	}
	if c.TextClass == "" {
		c.TextClass = d.TextClass
	}
	if c.TestimonialMarkers == nil {
		c.TestimonialMarkers = d.TestimonialMarkers
	}
	if c.TestimonialTags == nil {
		c.TestimonialTags = d.TestimonialTags
	}
	if c.ThinTextChars <= 0 {
		c.ThinTextChars = d.ThinTextChars
	}
	return c
}

// Header 返回页头子树。
func (c Convention) Header(doc *dom.Document) *dom.Node { return doc.FindFirst("", c.HeaderClass) }

// Footer 返回页脚子树。
func (c Convention) Footer(doc *dom.Document) *dom.Node { return doc.FindFirst("", c.FooterClass) }

// ContentRegion 返回内容区：post-content，依次回退 main、#content、section.full-width。
func (c Convention) ContentRegion(doc *dom.Document) *dom.Node {
	if n := doc.FindFirst("", c.ContentClass); n != nil {
		return n
	}
	if n := doc.FindFirst("main"); n != nil {
		return n
	}
	if n := doc.Root.FindByID("content"); n != nil {
		return n
	}
	return doc.FindFirst("section", "full-width")
}

// IsSection 报告 n 是否为 FullWidthBlock。
func (c Convention) IsSection(n *dom.Node) bool { return n.Matches("", c.SectionClasses...) }

// Sections 返回 region 内的顶层 Section（嵌套 Section 不单列）。
func (c Convention) Sections(region *dom.Node) []*dom.Node {
	if region == nil {
		return nil
	}
	return region.FindAllFunc(func(n *dom.Node) bool {
		if !c.IsSection(n) {
			return false
		}
		for p := n.Parent; p != nil && p != region; p = p.Parent {
			if c.IsSection(p) {
				return false
			}
		}
		return true
	})
}

// AllSections 返回页头/页脚之外的全部顶层 Section。
func (c Convention) AllSections(doc *dom.Document) []*dom.Node {
	hdr, ftr := c.Header(doc), c.Footer(doc)
	var out []*dom.Node
	for _, s := range c.Sections(doc.Root) {
		if (hdr != nil && hdr.Contains(s)) || (ftr != nil && ftr.Contains(s)) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Wrapper 沿 Row → Column → Wrapper 链返回内容包裹；链不完整时返回 nil。
func (c Convention) Wrapper(section *dom.Node) *dom.Node {
	if !c.IsSection(section) {
		return nil
	}
	row := childMatching(section, c.RowMatch...)
	col := childMatching(row, c.ColumnMatch...)
	return childMatching(col, c.WrapperClass)
}

// ValidSection 报告 Section 是否满足四层嵌套约定（用于校验修复产物）。
func (c Convention) ValidSection(section *dom.Node) bool { return c.Wrapper(section) != nil }

func childMatching(n *dom.Node, classes ...string) *dom.Node {
	for _, ch := range n.ElementChildren() {
		if ch.Matches("", classes...) {
			return ch
		}
	}
	return nil
}

// Kind 按显式类名/标签标记判定 Section 类别。
func (c Convention) Kind(section *dom.Node) contract.SectionKind {
	if section == nil {
		return contract.SectionUnknown
	}
	if c.hasTestimonialMarker(section) || len(section.FindAllFunc(c.hasTestimonialMarker)) > 0 {
		return contract.SectionTestimonial
	}
	if HasContent(section) {
		return contract.SectionGeneric
	}
	return contract.SectionUnknown
}

func (c Convention) hasTestimonialMarker(n *dom.Node) bool {
	if n.Type != dom.ElementNode {
		return false
	}
	for _, t := range c.TestimonialTags {
		if n.Tag == t {
			return true
		}
	}
	for _, cls := range n.Classes() {
		for _, m := range c.TestimonialMarkers {
			if strings.Contains(strings.ToLower(cls), m) {
				return true
			}
		}
	}
	return false
}

// HasContent 报告 Section 是否承载标题、段落或图片。
func HasContent(section *dom.Node) bool {
	return section.FindFirst("img") != nil || section.FindFirst("p") != nil || firstHeading(section) != nil
}

// Substantial 报告 Section 是否有实质内容：标题、图片、超过阈值的文本，或由修复插入。
func (c Convention) Substantial(section *dom.Node) bool {
	if _, ok := section.AttrValue(RepairMarker); ok {
		return true
	}
	if firstHeading(section) != nil || section.FindFirst("img") != nil {
		return true
	}
	return len([]rune(section.CollapsedText())) > c.ThinTextChars
}

func firstHeading(n *dom.Node) *dom.Node {
	for _, m := range n.FindAllFunc(func(x *dom.Node) bool { return x.Type == dom.ElementNode }) {
		if k, _ := contract.KindFromTag(m.Tag); k == contract.KindHeading {
			return m
		}
	}
	return nil
}

// PageMetaOf 提取标题（去掉站点后缀）与描述；缺失时由路径推导标题。
func (c Convention) PageMetaOf(doc *dom.Document, id contract.FileID) contract.PageMeta {
	meta := contract.PageMeta{FileID: id}
	if t := doc.FindFirst("title"); t != nil {
		title := t.CollapsedText()
		if c.TitleSuffix != nil && *c.TitleSuffix != "" {
			title = strings.TrimSuffix(title, *c.TitleSuffix)
		}
		meta.Title = strings.TrimSpace(title)
	}
	if meta.Title == "" {
		if h := doc.FindFirst("h1"); h != nil {
			meta.Title = h.CollapsedText()
		}
	}
	if meta.Title == "" {
		meta.Title = TitleFromPath(id)
	}
	for _, m := range doc.FindAll("meta") {
		name := strings.ToLower(m.Get("name"))
		if name == "" {
			name = strings.ToLower(m.Get("property"))
		}
		if name == "description" || (name == "og:description" && meta.Description == "") {
			meta.Description = m.Get("content")
		}
	}
	return meta
}

// TitleFromPath: blog/my-post/index.html → "My Post"。
func TitleFromPath(id contract.FileID) string {
	p := string(contract.NormalizeFileID(string(id)))
	base := path.Base(p)
	if strings.HasPrefix(base, "index.") {
		base = path.Base(path.Dir(p))
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "." || base == "/" || base == "" {
		return "Home"
	}
	words := strings.FieldsFunc(base, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// TruncationPoint 返回紧随页头（无页头时为 body 开头）的首个孤立结束标签；不存在时为 nil。
func (c Convention) TruncationPoint(doc *dom.Document) *dom.Node {
	var next *dom.Node
	if header := c.Header(doc); header != nil {
		next = header.NextSignificant()
	} else {
		next = doc.Body().FirstSignificantChild()
	}
	if next != nil && next.Type == dom.OrphanEndNode {
		return next
	}
	return nil
}

// LeadChars: 重复判定比较的前导字符数。
const LeadChars = 100

// LeadKey 返回 Section 的重复判定键：空白折叠、大小写折叠后的前 LeadChars 个字符。
func LeadKey(section *dom.Node) string {
	r := []rune(strings.ToLower(section.CollapsedText()))
	if len(r) > LeadChars {
		r = r[:LeadChars]
	}
	return string(r)
}
