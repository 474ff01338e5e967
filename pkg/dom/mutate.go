package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// 变更均经由 Document，以便统一置位 modified。
// 被移动的节点会先从原父节点摘下。

// AppendChild 将 child 追加为 parent 的最后一个子节点。
func (d *Document) AppendChild(parent, child *Node) {
	if parent == nil || child == nil {
		return
	}
	detach(child)
	parent.appendChild(child)
	d.modified = true
}

// InsertBefore 将 n 插到 ref 之前；ref 无父节点时返回 false。
func (d *Document) InsertBefore(ref, n *Node) bool {
	return d.insertAt(ref, n, 0)
}

// InsertAfter 将 n 插到 ref 之后。
func (d *Document) InsertAfter(ref, n *Node) bool {
	return d.insertAt(ref, n, 1)
}

func (d *Document) insertAt(ref, n *Node, off int) bool {
	if ref == nil || n == nil || ref.Parent == nil || ref == n {
		return false
	}
	detach(n)
	p := ref.Parent
	i := p.indexOf(ref) + off
	p.children = append(p.children, nil)
	copy(p.children[i+1:], p.children[i:])
	p.children[i] = n
	n.Parent = p
	d.modified = true
	return true
}

// ReplaceWith 用 n 替换 old；old 被摘下。
func (d *Document) ReplaceWith(old, n *Node) bool {
	if old == nil || n == nil || old.Parent == nil {
		return false
	}
	if old == n {
		return true
	}
	detach(n)
	p := old.Parent
	p.children[p.indexOf(old)] = n
	n.Parent = p
	old.Parent = nil
	d.modified = true
	return true
}

// Extract 将节点从树上摘下。
func (d *Document) Extract(n *Node) bool {
	if n == nil || n.Parent == nil {
		return false
	}
	detach(n)
	d.modified = true
	return true
}

// WrapIn 用新元素包裹 n 并返回包裹元素。
func (d *Document) WrapIn(n *Node, tag string, classes ...string) *Node {
	if n == nil || n.Parent == nil {
		return nil
	}
	w := NewElement(tag)
	if len(classes) > 0 {
		w.Attr = []html.Attribute{{Key: "class", Val: strings.Join(classes, " ")}}
	}
	d.ReplaceWith(n, w)
	w.appendChild(n)
	return w
}

// Unwrap 用 n 的子节点替换 n。
func (d *Document) Unwrap(n *Node) bool {
	if n == nil || n.Parent == nil {
		return false
	}
	p := n.Parent
	i := p.indexOf(n)
	kids := n.children
	n.children = nil
	rest := append([]*Node(nil), p.children[i+1:]...)
	p.children = append(p.children[:i], kids...)
	p.children = append(p.children, rest...)
	for _, k := range kids {
		k.Parent = p
	}
	n.Parent = nil
	d.modified = true
	return true
}

// SetAttr 设置属性；值未变化时不视为修改。
func (d *Document) SetAttr(n *Node, key, val string) {
	if n == nil || n.Type != ElementNode {
		return
	}
	for i, a := range n.Attr {
		if a.Key == key {
			if a.Val == val {
				return
			}
			n.Attr[i].Val = val
			n.dirty = true
			d.modified = true
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	n.dirty = true
	d.modified = true
}

// RemoveAttr 删除属性。
func (d *Document) RemoveAttr(n *Node, key string) bool {
	if n == nil {
		return false
	}
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			n.dirty = true
			d.modified = true
			return true
		}
	}
	return false
}

// SetText 以单个文本节点替换全部子节点。
func (d *Document) SetText(n *Node, s string) {
	if n == nil {
		return
	}
	for _, c := range n.children {
		c.Parent = nil
	}
	n.children = nil
	n.appendChild(NewText(s))
	d.modified = true
}

func detach(n *Node) {
	p := n.Parent
	if p == nil {
		return
	}
	if i := p.indexOf(n); i >= 0 {
		p.children = append(p.children[:i], p.children[i+1:]...)
	}
	n.Parent = nil
}
