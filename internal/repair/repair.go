// Package repair 为每类缺陷提供一个幂等修复策略。
//
// 每个策略先复核自身前提：前提不成立返回 NoOp，找不到锚点返回 Skipped（Err 包装 ErrStrategySkipped）。
// 策略只经由 dom.Document 的变更方法修改树，遍历前一律取子节点快照。
package repair

import (
	"fmt"

	"sitemend/internal/layout"
	"sitemend/internal/palette"
	"sitemend/pkg/contract"
	"sitemend/pkg/dom"
)

// Outcome 策略执行结果。
type Outcome int

const (
	NoOp Outcome = iota
	Applied
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	default:
		return "noop"
	}
}

// Result: Path 为修复路径标记（layout.Mark*），Err 仅在 Skipped 时非空。
type Result struct {
	Outcome Outcome
	Path    string
	Detail  string
	Err     error
}

func applied(path, format string, args ...any) Result {
	return Result{Outcome: Applied, Path: path, Detail: fmt.Sprintf(format, args...)}
}

func noop(detail string) Result { return Result{Outcome: NoOp, Detail: detail} }

// Skip 构造跳过结果；cause 非空时一并包装。
func Skip(cause error, format string, args ...any) Result {
	detail := fmt.Sprintf(format, args...)
	err := fmt.Errorf("%w: %s", contract.ErrStrategySkipped, detail)
	if cause != nil {
		err = fmt.Errorf("%w: %s: %w", contract.ErrStrategySkipped, detail, cause)
	}
	return Result{Outcome: Skipped, Detail: detail, Err: err}
}

// Set 持有站点约定与色板；无状态，可并发复用。
type Set struct {
	conv layout.Convention
	pal  palette.Palette
}

// New 构造策略集；零值字段以默认值补齐。
func New(conv layout.Convention, pal palette.Palette) *Set {
	return &Set{conv: conv.WithDefaults(), pal: pal.WithDefaults()}
}

// Convention 返回生效的站点约定。
func (s *Set) Convention() layout.Convention { return s.conv }

// RepairEmptyHeader 用参考页头（逐字节拷贝）替换空页头。
func (s *Set) RepairEmptyHeader(doc *dom.Document, header, reference *dom.Node) Result {
	if header == nil || !header.Attached() {
		return Skip(nil, "no header")
	}
	if len(header.ElementChildren()) > 0 {
		return noop("header not empty")
	}
	if reference == nil || len(reference.ElementChildren()) == 0 {
		return Skip(contract.ErrReferenceNotFound, "reference header empty")
	}
	doc.ReplaceWith(header, reference.Clone())
	return applied(layout.MarkHeader, "header restored (%d elements)", len(reference.FindAllFunc(isElement)))
}

// RepairMissingMainWrapper 在截断处插入主包裹（含 h1 标题与描述段落），并丢弃其后的孤立结束标签串。
// 内容区已存在时只丢弃孤立标签；reference 为参考文档的 main（可为 nil），仅用于沿用其属性。
func (s *Set) RepairMissingMainWrapper(doc *dom.Document, reference *dom.Node, title, description string) Result {
	orphan := s.conv.TruncationPoint(doc)
	region := s.conv.ContentRegion(doc)
	if orphan == nil && region != nil {
		return noop("main wrapper present")
	}

	if orphan != nil {
		run := orphanRun(orphan)
		inserted := false
		if region == nil {
			main := s.conv.MainWrapper(reference, title, description, s.pal.BackgroundFor(contract.SectionGeneric))
			inserted = doc.InsertBefore(orphan, main)
		}
		for _, n := range run {
			doc.Extract(n)
		}
		if inserted {
			return applied(layout.MarkMainWrapper, "main wrapper inserted, %d orphan tag(s) dropped", len(run))
		}
		return applied(layout.MarkMainWrapper, "%d orphan tag(s) dropped", len(run))
	}

	main := s.conv.MainWrapper(reference, title, description, s.pal.BackgroundFor(contract.SectionGeneric))
	if header := s.conv.Header(doc); header != nil {
		doc.InsertAfter(header, main)
		return applied(layout.MarkMainWrapper, "main wrapper inserted after header")
	}
	if footer := s.conv.Footer(doc); footer != nil {
		doc.InsertBefore(footer, main)
		return applied(layout.MarkMainWrapper, "main wrapper inserted before footer")
	}
	return Skip(nil, "no header or footer to anchor main wrapper")
}

// orphanRun 返回从 first 起连续的孤立结束标签（其间空白与注释一并丢弃）。
func orphanRun(first *dom.Node) []*dom.Node {
	run := []*dom.Node{first}
	var gap []*dom.Node
	for n := first.NextSibling(); n != nil; n = n.NextSibling() {
		switch {
		case n.Type == dom.OrphanEndNode:
			run = append(run, gap...)
			run = append(run, n)
			gap = nil
		case n.Type == dom.CommentNode, n.Type == dom.TextNode && n.CollapsedText() == "":
			gap = append(gap, n)
		default:
			return run
		}
	}
	return run
}

// RestoreContent 将内容块物化为一个新 Section，插在最后一个 Section 之后；首个 Section 不动。
// marker 记录内容来源（layout.MarkRestore*）。
func (s *Set) RestoreContent(doc *dom.Document, blocks []contract.ContentBlock, marker string) Result {
	region := s.conv.ContentRegion(doc)
	if region == nil {
		return Skip(nil, "no content region")
	}
	secs := s.conv.Sections(region)
	if len(secs) == 0 {
		return Skip(nil, "no first section")
	}
	for _, sec := range secs[1:] {
		if s.conv.Substantial(sec) {
			return noop("content present")
		}
	}
	if len(blocks) == 0 {
		return Skip(nil, "no content blocks")
	}
	sec := s.conv.NewSection(s.pal.BackgroundFor(contract.SectionGeneric), marker, s.conv.Materialize(blocks)...)
	// 构建类与识别类不一致时插入的 Section 无法被再次识别
	if !s.conv.ValidSection(sec) {
		return Skip(nil, "built section fails nesting check")
	}
	doc.InsertAfter(secs[len(secs)-1], sec)
	return applied(marker, "section restored with %d block(s)", len(blocks))
}

// RemoveDuplicateSection 摘下与先前 Section 前导文本相同的 Section；先出现者保留。
func (s *Set) RemoveDuplicateSection(doc *dom.Document, dup *dom.Node) Result {
	if dup == nil || !dup.Attached() {
		return noop("section already detached")
	}
	key := layout.LeadKey(dup)
	if key == "" {
		return noop("section has no text")
	}
	region := s.conv.ContentRegion(doc)
	if region == nil {
		return Skip(nil, "no content region")
	}
	for _, sec := range s.conv.Sections(region) {
		if sec == dup {
			return noop("no earlier section with the same leading text")
		}
		if layout.LeadKey(sec) == key {
			doc.Extract(dup)
			return applied("remove-duplicate", "duplicate section removed")
		}
	}
	return Skip(nil, "section outside content region")
}

// ApplyBackground 按 Section 类别写入默认背景；已有背景声明时不覆盖。
func (s *Set) ApplyBackground(doc *dom.Document, section *dom.Node, kind contract.SectionKind) Result {
	if section == nil || !section.Attached() {
		return Skip(nil, "no section")
	}
	st := dom.StyleOf(section)
	if _, ok := s.pal.Background(st); ok {
		return noop("background present")
	}
	color := s.pal.BackgroundFor(kind)
	st.Set(layout.BackgroundProp, color, false)
	doc.SetStyle(section, st)
	return applied("background", "%s background %s", kind, color)
}

// ApplyTextContrast 先序遍历 Section 内文字元素，将与背景不成对的前景改为对应的高对比色。
// 已被祖先修正而成对的元素不再改动。
func (s *Set) ApplyTextContrast(doc *dom.Document, section *dom.Node) Result {
	if section == nil || !section.Attached() {
		return Skip(nil, "no section")
	}
	if s.pal.SectionTone(section) == palette.Unknown {
		return Skip(nil, "background tone unknown")
	}
	fixed := 0
	for _, n := range section.FindAllFunc(palette.IsText) {
		bg, bad := s.pal.Conflicting(n, section, s.conv.IsSection)
		if !bad {
			continue
		}
		st := dom.StyleOf(n)
		st.Remove("color")
		st.Set("color", s.pal.Counterpart(bg), true)
		doc.SetStyle(n, st)
		fixed++
	}
	if fixed == 0 {
		return noop("contrast consistent")
	}
	return applied("text-contrast", "%d text element(s) recolored", fixed)
}

func isElement(n *dom.Node) bool { return n.Type == dom.ElementNode }
