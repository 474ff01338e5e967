// Package classify 检查文档结构健康度，输出固定分类的缺陷清单。
//
// 结构类缺陷（空页头、缺失主包裹）存在时，本轮不做内容与样式检查；
// 属性语法损坏在解析前由 repair.NormalizeAttributeSyntax 预处理，不作为 Finding 输出。
package classify

import (
	"fmt"
	"sort"

	"sitemend/internal/layout"
	"sitemend/internal/palette"
	"sitemend/pkg/contract"
	"sitemend/pkg/dom"
)

// Classifier 无状态，可并发复用。
type Classifier struct {
	conv layout.Convention
	pal  palette.Palette
}

// New 构造分类器；零值字段以默认约定补齐。
func New(conv layout.Convention, pal palette.Palette) *Classifier {
	return &Classifier{conv: conv.WithDefaults(), pal: pal.WithDefaults()}
}

// Classify 返回按严重度、文档顺序排列的缺陷。
func (c *Classifier) Classify(doc *dom.Document) []contract.Finding {
	if doc == nil {
		return nil
	}
	if out := c.Structural(doc); len(out) > 0 {
		return out
	}
	return c.NonStructural(doc)
}

// NonStructural 仅执行内容与样式检查；结构类缺陷无法修复时由调用方使用。
func (c *Classifier) NonStructural(doc *dom.Document) []contract.Finding {
	if doc == nil {
		return nil
	}
	out := c.contentFindings(doc)
	out = append(out, c.styleFindings(doc)...)
	sortFindings(doc, out)
	return out
}

// Structural 仅执行结构类检查。
func (c *Classifier) Structural(doc *dom.Document) []contract.Finding {
	var out []contract.Finding
	header := c.conv.Header(doc)
	if header != nil && len(header.ElementChildren()) == 0 {
		out = append(out, contract.NewFinding(contract.DefectEmptyHeader, header, "header has no child elements"))
	}
	if orphan := c.conv.TruncationPoint(doc); orphan != nil {
		out = append(out, contract.NewFinding(contract.DefectMissingMainWrapper, orphan,
			fmt.Sprintf("orphaned </%s> after header", orphan.Tag)))
	} else if c.conv.ContentRegion(doc) == nil {
		out = append(out, contract.NewFinding(contract.DefectMissingMainWrapper, header, "content region absent"))
	}
	return out
}

func (c *Classifier) contentFindings(doc *dom.Document) []contract.Finding {
	region := c.conv.ContentRegion(doc)
	if region == nil {
		return nil
	}
	secs := c.conv.Sections(region)
	var out []contract.Finding

	missing := true
	for _, s := range secs[min(1, len(secs)):] {
		if c.conv.Substantial(s) {
			missing = false
			break
		}
	}
	if missing {
		anchor := region
		if len(secs) > 0 {
			anchor = secs[len(secs)-1]
		}
		out = append(out, contract.NewFinding(contract.DefectContentMissing, anchor,
			fmt.Sprintf("%d section(s), none substantial beyond the first", len(secs))))
	}

	seen := make(map[string]bool, len(secs))
	for _, s := range secs {
		key := layout.LeadKey(s)
		if key == "" {
			continue
		}
		if seen[key] {
			out = append(out, contract.NewFinding(contract.DefectContentDuplicate, s, "leading text repeats an earlier section"))
			continue
		}
		seen[key] = true
	}
	return out
}

func (c *Classifier) styleFindings(doc *dom.Document) []contract.Finding {
	var out []contract.Finding
	for _, s := range c.conv.AllSections(doc) {
		kind := c.conv.Kind(s)
		if _, ok := c.pal.Background(dom.StyleOf(s)); !ok {
			if layout.HasContent(s) {
				f := contract.NewFinding(contract.DefectMissingBackground, s, "content section without background")
				f.Section = kind
				out = append(out, f)
			}
			continue
		}
		if bad := c.pal.Conflicts(s, c.conv.IsSection); len(bad) > 0 {
			f := contract.NewFinding(contract.DefectUnstyledText, s,
				fmt.Sprintf("%d text element(s) clash with %s background", len(bad), c.pal.SectionTone(s)))
			f.Section = kind
			out = append(out, f)
		}
	}
	return out
}

func sortFindings(doc *dom.Document, fs []contract.Finding) {
	if len(fs) < 2 {
		return
	}
	pos := make(map[*dom.Node]int)
	i := 0
	doc.Root.FindAllFunc(func(n *dom.Node) bool {
		pos[n] = i
		i++
		return false
	})
	at := func(n *dom.Node) int {
		if p, ok := pos[n]; ok {
			return p
		}
		return -1
	}
	sort.SliceStable(fs, func(a, b int) bool {
		if fs[a].Severity != fs[b].Severity {
			return fs[a].Severity < fs[b].Severity
		}
		return at(fs[a].Node) < at(fs[b].Node)
	})
}
