package layout

import (
	"fmt"
	"strings"

	"sitemend/pkg/contract"
	"sitemend/pkg/dom"
)

// 构造器只产出满足四层嵌套的新节点。

func el(tag string, classes []string, kids ...*dom.Node) *dom.Node {
	n := dom.NewElement(tag)
	if len(classes) > 0 {
		n.Attr = append(n.Attr, dom.A("class", strings.Join(classes, " ")))
	}
	for _, k := range kids {
		dom.Adopt(n, k)
	}
	return n
}

// NewSection 构造 FullWidthBlock → Row → Column → Wrapper 并放入 content。
// bg 非空时写入背景声明；marker 非空时写入修复路径标记。
func (c Convention) NewSection(bg, marker string, content ...*dom.Node) *dom.Node {
	wrapper := el("div", []string{c.WrapperClass}, content...)
	col := el("div", c.ColumnClasses, wrapper)
	row := el("div", c.RowClasses, col)
	sec := el("div", c.SectionClasses, row)
	if bg != "" {
		sec.Attr = append(sec.Attr, dom.A("style", BackgroundProp+":"+bg+";"))
	}
	if marker != "" {
		sec.Attr = append(sec.Attr, dom.A(RepairMarker, marker))
	}
	return sec
}

// BackgroundProp 为构建器的背景色自定义属性。
const BackgroundProp = "--awb-background-color"

// TitleWrapper: div.fusion-title.title > hN.title-heading-left。
func (c Convention) TitleWrapper(level int, text string) *dom.Node {
	if level < 1 || level > 6 {
		level = 2
	}
	h := el(fmt.Sprintf("h%d", level), []string{c.HeadingClass}, dom.NewText(text))
	return el("div", c.TitleClasses, h)
}

// TextWrapper: div.fusion-text > 子节点。
func (c Convention) TextWrapper(kids ...*dom.Node) *dom.Node {
	return el("div", []string{c.TextClass}, kids...)
}

// Paragraph 构造 <p>。
func Paragraph(text string) *dom.Node { return el("p", nil, dom.NewText(text)) }

// List 构造 <ul>/<ol>。
func List(ordered bool, items []string) *dom.Node {
	tag := "ul"
	if ordered {
		tag = "ol"
	}
	l := el(tag, nil)
	for _, it := range items {
		dom.Adopt(l, el("li", nil, dom.NewText(it)))
	}
	return l
}

// Materialize 将内容块逐一转为 Section 内节点：Heading → 标题包裹；Paragraph/List → 文本包裹。
func (c Convention) Materialize(blocks []contract.ContentBlock) []*dom.Node {
	out := make([]*dom.Node, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case contract.BlockHeading:
			out = append(out, c.TitleWrapper(b.Level, b.Text))
		case contract.BlockList:
			out = append(out, c.TextWrapper(List(b.Ordered, b.Items)))
		default:
			out = append(out, c.TextWrapper(Paragraph(b.Text)))
		}
	}
	return out
}

// MainWrapper 构造 main#main > div.fusion-row > section#content.full-width > div.post-content，
// 内含标题/描述 Section。proto 非空时沿用其 main 的属性。
func (c Convention) MainWrapper(proto *dom.Node, title, description, bg string) *dom.Node {
	kids := []*dom.Node{c.TitleWrapper(1, title)}
	if strings.TrimSpace(description) != "" {
		kids = append(kids, c.TextWrapper(Paragraph(description)))
	}
	sec := c.NewSection(bg, "", kids...)
	content := el("div", []string{c.ContentClass}, sec)
	section := el("section", []string{"full-width"}, content)
	section.Attr = append([]dom.Attr{dom.A("id", "content")}, section.Attr...)
	row := el("div", []string{"fusion-row"}, section)

	main := dom.NewElement("main", dom.A("id", "main"), dom.A("class", "clearfix width-100"))
	if proto != nil && proto.Tag == "main" && len(proto.Attr) > 0 {
		main = dom.NewElement("main")
		for _, a := range proto.Attr {
			if a.Key != RepairMarker {
				main.Attr = append(main.Attr, a)
			}
		}
	}
	main.Attr = append(main.Attr, dom.A(RepairMarker, MarkMainWrapper))
	dom.Adopt(main, row)
	return main
}
