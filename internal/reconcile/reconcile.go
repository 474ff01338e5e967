// Package reconcile 将归档片段重组为有序的内容块序列。
//
// 归档记录相对最终文档结构无序且含噪声（导航、菜单等抓取残留）；
// Reconcile 按文件过滤、去噪、按出现顺序排序，再按元素类别做状态迁移分组。
// 同样的输入总是得到同样的输出，与原始记录顺序无关。
package reconcile

import (
	"sort"
	"strings"

	"sitemend/internal/layout"
	"sitemend/pkg/contract"
	"sitemend/pkg/dom"
)

// Options 去噪与分组参数。
type Options struct {
	// Denylist: 整条文本等于这些标签时丢弃（忽略大小写与多余空白）。
	Denylist []string `json:"denylist" yaml:"denylist"`
	// AllOf: 文本同时包含组内全部子串时丢弃。
	AllOf [][]string `json:"all_of" yaml:"all_of"`
	// MinOtherChars: other 类片段短于该长度时丢弃。
	MinOtherChars int `json:"min_other_chars" yaml:"min_other_chars"`
	// MinListRun: 连续列表项达到该数量才成为 List 块。
	MinListRun int `json:"min_list_run" yaml:"min_list_run"`
}

// DefaultOptions 站点导航的已知残留标签。
func DefaultOptions() Options {
	return Options{
		Denylist:      []string{"Paid Search", "Paid Social", "Performance Creative", "Amazon Ads"},
		AllOf:         [][]string{{"Paid Search", "Paid Social"}},
		MinOtherChars: 20,
		MinListRun:    3,
	}
}

// WithDefaults 以默认值补齐零值字段。
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Denylist == nil {
		o.Denylist = d.Denylist
	}
	if o.AllOf == nil {
		o.AllOf = d.AllOf
	}
	if o.MinOtherChars <= 0 {
		o.MinOtherChars = d.MinOtherChars
	}
	if o.MinListRun <= 0 {
		o.MinListRun = d.MinListRun
	}
	return o
}

// Reconciler 无状态，可并发复用。
type Reconciler struct {
	opts Options
}

// New 构造重组器。
func New(opts Options) *Reconciler { return &Reconciler{opts: opts.WithDefaults()} }

// Reconcile 返回 target 的内容块；无可用片段时返回空序列（不是错误）。
func (r *Reconciler) Reconcile(archive []contract.ContentItem, target contract.FileID) []contract.ContentBlock {
	key := contract.PathKey(string(target))
	if key == "" || len(archive) == 0 {
		return nil
	}
	var items []contract.ContentItem
	for _, it := range archive {
		if contract.PathKey(it.SourceFile) != key {
			continue
		}
		it.Text = collapse(it.Text)
		if it.Text == "" || r.noise(it) {
			continue
		}
		items = append(items, it)
	}
	if len(items) == 0 {
		return nil
	}
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })

	// 仅去掉重复记录（同序号同文本）；不同位置的相同文本保留。
	uniq := items[:0]
	for i, it := range items {
		if i > 0 && sameRecord(items[i-1], it) {
			continue
		}
		uniq = append(uniq, it)
	}
	return r.group(uniq)
}

func (r *Reconciler) noise(it contract.ContentItem) bool {
	for _, label := range r.opts.Denylist {
		if strings.EqualFold(it.Text, collapse(label)) {
			return true
		}
	}
	lower := strings.ToLower(it.Text)
	for _, group := range r.opts.AllOf {
		if len(group) == 0 {
			continue
		}
		all := true
		for _, sub := range group {
			if !strings.Contains(lower, strings.ToLower(sub)) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return it.Kind == contract.KindOther && len([]rune(it.Text)) < r.opts.MinOtherChars
}

// less: (sequence, kind, level, text) 全序，保证与输入顺序无关。
func less(a, b contract.ContentItem) bool {
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.Level != b.Level {
		return a.Level < b.Level
	}
	if a.Text != b.Text {
		return a.Text < b.Text
	}
	return !a.Ordered && b.Ordered
}

func sameRecord(a, b contract.ContentItem) bool {
	return a.Sequence == b.Sequence && a.Kind == b.Kind && a.Level == b.Level && a.Text == b.Text
}

// group 状态迁移：标题切分；非标题累积为段落；连续列表项达到阈值成为 List，否则并入段落。
func (r *Reconciler) group(items []contract.ContentItem) []contract.ContentBlock {
	var (
		out  []contract.ContentBlock
		para []string
		run  []contract.ContentItem
	)
	flushPara := func() {
		if len(para) > 0 {
			out = append(out, contract.ContentBlock{Kind: contract.BlockParagraph, Text: strings.Join(para, " ")})
			para = nil
		}
	}
	flushRun := func() {
		if len(run) == 0 {
			return
		}
		if len(run) >= r.opts.MinListRun {
			flushPara()
			b := contract.ContentBlock{Kind: contract.BlockList, Ordered: run[0].Ordered}
			for _, it := range run {
				b.Items = append(b.Items, it.Text)
			}
			out = append(out, b)
		} else {
			for _, it := range run {
				para = append(para, it.Text)
			}
		}
		run = nil
	}
	for _, it := range items {
		switch it.Kind {
		case contract.KindHeading:
			flushRun()
			flushPara()
			lvl := it.Level
			if lvl < 1 || lvl > 6 {
				lvl = 2
			}
			out = append(out, contract.ContentBlock{Kind: contract.BlockHeading, Level: lvl, Text: it.Text})
		case contract.KindListItem:
			run = append(run, it)
		default:
			flushRun()
			para = append(para, it.Text)
		}
	}
	flushRun()
	flushPara()
	return out
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }

// ItemsFromDocument 将参考文档首个 Section 之后的内容转为归档片段，使远端内容走同一分组流程。
// 已被外层片段元素包含的元素不重复产出。
func ItemsFromDocument(doc *dom.Document, conv layout.Convention, id contract.FileID) []contract.ContentItem {
	conv = conv.WithDefaults()
	var secs []*dom.Node
	if region := conv.ContentRegion(doc); region != nil {
		secs = conv.Sections(region)
	} else {
		secs = conv.AllSections(doc)
	}
	if len(secs) < 2 {
		return nil
	}
	var out []contract.ContentItem
	seq := int64(0)
	for _, sec := range secs[1:] {
		for _, n := range sec.FindAllFunc(func(n *dom.Node) bool { return itemElement(n) && !insideItem(n, sec) }) {
			text := n.CollapsedText()
			if text == "" {
				continue
			}
			seq++
			kind, level := contract.KindFromTag(n.Tag)
			it := contract.ContentItem{SourceFile: string(id), Kind: kind, Level: level, Tag: n.Tag, Sequence: seq, Text: text}
			if kind == contract.KindListItem {
				it.Ordered = n.Parent != nil && n.Parent.Tag == "ol"
			}
			out = append(out, it)
		}
	}
	return out
}

func itemElement(n *dom.Node) bool {
	if n.Type != dom.ElementNode {
		return false
	}
	k, _ := contract.KindFromTag(n.Tag)
	return k != contract.KindOther
}

func insideItem(n, stop *dom.Node) bool {
	for p := n.Parent; p != nil && p != stop; p = p.Parent {
		if itemElement(p) {
			return true
		}
	}
	return false
}
