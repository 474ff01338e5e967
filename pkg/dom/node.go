package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// NodeType 节点类型。
type NodeType int

const (
	DocumentNode NodeType = iota
	ElementNode
	TextNode
	CommentNode
	DoctypeNode
	// OrphanEndNode: 没有匹配起始标签的结束标签（截断生成的典型痕迹）。
	OrphanEndNode
)

// Node 为可变文档树节点。
// 未改动的节点按原始字节回写；新建或属性被改动的节点按默认格式重新序列化。
type Node struct {
	Type NodeType
	Tag  string // 小写标签名（Element/OrphanEnd）
	Attr []html.Attribute
	Data string // 文本（已反转义）、注释或 doctype 内容

	Parent   *Node
	children []*Node

	raw       string // 原始起始标签 / 文本 / 注释字节；新建节点为空
	endRaw    string // 原始结束标签；空表示隐式闭合
	selfClose bool
	dirty     bool
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// NewElement 构造新元素（序列化时输出完整起止标签）。
func NewElement(tag string, attr ...html.Attribute) *Node {
	n := &Node{Type: ElementNode, Tag: strings.ToLower(tag), dirty: true}
	if len(attr) > 0 {
		n.Attr = append([]html.Attribute(nil), attr...)
	}
	return n
}

// NewText 构造文本节点；序列化时转义。
func NewText(s string) *Node { return &Node{Type: TextNode, Data: s, dirty: true} }

// Attr 属性键值。
type Attr = html.Attribute

// A 构造属性。
func A(key, val string) Attr { return Attr{Key: key, Val: val} }

// Adopt 在尚未挂入文档的片段上追加子节点（构造新子树时使用）。
// 已挂入文档的节点请使用 Document.AppendChild。
func Adopt(parent, child *Node) {
	if parent == nil || child == nil {
		return
	}
	detach(child)
	parent.appendChild(child)
}

// Children 返回子节点快照；调用方可在遍历中安全修改树。
func (n *Node) Children() []*Node {
	if n == nil || len(n.children) == 0 {
		return nil
	}
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// ElementChildren 返回元素子节点快照。
func (n *Node) ElementChildren() []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.children {
		if c.Type == ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// NumChildren 子节点数量（含文本/注释）。
func (n *Node) NumChildren() int {
	if n == nil {
		return 0
	}
	return len(n.children)
}

// IsVoid 报告元素是否为空元素（无结束标签）。
func (n *Node) IsVoid() bool { return n != nil && n.Type == ElementNode && voidElements[n.Tag] }

// AttrValue 返回去除首尾空白后的属性值。
func (n *Node) AttrValue(key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val), true
		}
	}
	return "", false
}

// Get 返回属性值；不存在时为空串。
func (n *Node) Get(key string) string {
	v, _ := n.AttrValue(key)
	return v
}

// ID 返回 id 属性。
func (n *Node) ID() string { return n.Get("id") }

// Classes 返回 class 列表（按空白切分）。
func (n *Node) Classes() []string { return strings.Fields(n.Get("class")) }

// HasClass 区分大小写的精确 class 匹配。
func (n *Node) HasClass(c string) bool {
	for _, have := range n.Classes() {
		if have == c {
			return true
		}
	}
	return false
}

// Text 拼接后代文本；跳过 script/style 与注释。
func (n *Node) Text() string {
	var b strings.Builder
	collectText(&b, n)
	return b.String()
}

// CollapsedText 返回空白折叠后的文本。
func (n *Node) CollapsedText() string { return strings.Join(strings.Fields(n.Text()), " ") }

func collectText(b *strings.Builder, n *Node) {
	if n == nil {
		return
	}
	switch n.Type {
	case TextNode:
		b.WriteString(n.Data)
		return
	case ElementNode:
		if n.Tag == "script" || n.Tag == "style" {
			return
		}
	case DocumentNode:
	default:
		return
	}
	for _, c := range n.children {
		collectText(b, c)
	}
}

// Clone 深拷贝节点；原始字节一并保留，因此拷贝按原样序列化。
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		Type:      n.Type,
		Tag:       n.Tag,
		Data:      n.Data,
		raw:       n.raw,
		endRaw:    n.endRaw,
		selfClose: n.selfClose,
		dirty:     n.dirty,
	}
	if len(n.Attr) > 0 {
		c.Attr = append([]html.Attribute(nil), n.Attr...)
	}
	for _, ch := range n.children {
		cc := ch.Clone()
		cc.Parent = c
		c.children = append(c.children, cc)
	}
	return c
}

// significant: 元素或非空白文本、孤立结束标签。
func (n *Node) significant() bool {
	switch n.Type {
	case ElementNode, OrphanEndNode:
		return true
	case TextNode:
		return strings.TrimSpace(n.Data) != ""
	default:
		return false
	}
}

func (n *Node) appendChild(c *Node) {
	c.Parent = n
	n.children = append(n.children, c)
}

func (n *Node) indexOf(c *Node) int {
	for i, ch := range n.children {
		if ch == c {
			return i
		}
	}
	return -1
}
