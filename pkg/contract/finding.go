package contract

import "sitemend/pkg/dom"

// DefectKind: 固定缺陷分类。
type DefectKind string

const (
	DefectEmptyHeader           DefectKind = "empty_header"
	DefectMissingMainWrapper    DefectKind = "missing_main_wrapper"
	DefectContentMissing        DefectKind = "content_missing"
	DefectContentDuplicate      DefectKind = "content_duplicate"
	DefectBrokenAttributeSyntax DefectKind = "broken_attribute_syntax"
	DefectMissingBackground     DefectKind = "missing_background"
	DefectUnstyledText          DefectKind = "unstyled_text_on_background"
)

// AllDefectKinds 按处理顺序列出全部分类。
var AllDefectKinds = []DefectKind{
	DefectBrokenAttributeSyntax,
	DefectEmptyHeader,
	DefectMissingMainWrapper,
	DefectContentMissing,
	DefectContentDuplicate,
	DefectMissingBackground,
	DefectUnstyledText,
}

// Severity: 数值越小越先处理。
type Severity int

const (
	SeverityStructural Severity = iota
	SeverityContentMissing
	SeverityContentDuplicate
	SeverityStyling
)

func (s Severity) String() string {
	switch s {
	case SeverityStructural:
		return "structural"
	case SeverityContentMissing:
		return "content-missing"
	case SeverityContentDuplicate:
		return "content-duplicate"
	default:
		return "styling"
	}
}

// SeverityOf 返回分类的固定严重度。
func SeverityOf(k DefectKind) Severity {
	switch k {
	case DefectEmptyHeader, DefectMissingMainWrapper, DefectBrokenAttributeSyntax:
		return SeverityStructural
	case DefectContentMissing:
		return SeverityContentMissing
	case DefectContentDuplicate:
		return SeverityContentDuplicate
	default:
		return SeverityStyling
	}
}

// Finding: 单条缺陷；Node 指向活动树中的定位元素（可为 nil）。
type Finding struct {
	Kind     DefectKind
	Severity Severity
	Node     *dom.Node
	Section  SectionKind // 样式类缺陷：所在 Section 的类别
	Detail   string
}

// NewFinding 以固定严重度构造 Finding。
func NewFinding(k DefectKind, n *dom.Node, detail string) Finding {
	return Finding{Kind: k, Severity: SeverityOf(k), Node: n, Detail: detail}
}
