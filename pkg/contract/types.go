package contract

// FileID: 逻辑文档ID（语料根下的相对路径，需规范化，跨平台一致）。
type FileID string

// ElementKind: 归档片段的来源元素类别。
type ElementKind string

const (
	KindHeading   ElementKind = "heading"
	KindParagraph ElementKind = "paragraph"
	KindListItem  ElementKind = "list_item"
	KindOther     ElementKind = "other"
)

// ContentItem: 归档记录（只读，一次加载）。
// 同一 SourceFile 内 Sequence 给出原始出现顺序。
type ContentItem struct {
	SourceFile string      `json:"source_file"`
	Kind       ElementKind `json:"kind"`
	Level      int         `json:"level,omitempty"` // 仅 heading：1..6
	Tag        string      `json:"tag,omitempty"`
	Ordered    bool        `json:"ordered,omitempty"` // 仅 list_item：来源列表是否有序
	Sequence   int64       `json:"sequence"`
	Text       string      `json:"text"`
}

// KindFromTag 将元素标签映射为片段类别与标题级别。
func KindFromTag(tag string) (ElementKind, int) {
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return KindHeading, int(tag[1] - '0')
	case "p":
		return KindParagraph, 0
	case "li":
		return KindListItem, 0
	default:
		return KindOther, 0
	}
}

// BlockKind: 重建后的内容块类别。
type BlockKind string

const (
	BlockHeading   BlockKind = "heading"
	BlockParagraph BlockKind = "paragraph"
	BlockList      BlockKind = "list"
)

// ContentBlock: 由连续片段归并而成的内容单元，供修复策略物化为 Section。
type ContentBlock struct {
	Kind    BlockKind `json:"kind"`
	Level   int       `json:"level,omitempty"`   // heading
	Ordered bool      `json:"ordered,omitempty"` // list
	Text    string    `json:"text,omitempty"`    // heading/paragraph
	Items   []string  `json:"items,omitempty"`   // list
}

// PageMeta: 文档的标题/描述，供主包裹合成与占位内容生成。
type PageMeta struct {
	FileID      FileID
	Title       string
	Description string
}

// SectionKind: Section 的语义类别，每个 Section 只计算一次并在各策略间复用。
type SectionKind string

const (
	SectionUnknown     SectionKind = "unknown"
	SectionGeneric     SectionKind = "generic"
	SectionTestimonial SectionKind = "testimonial"
)
