package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// String 序列化文档；未修改时原样返回源文本。
func (d *Document) String() string {
	if d == nil {
		return ""
	}
	if !d.modified {
		return d.src
	}
	var b strings.Builder
	b.Grow(len(d.src) + 256)
	render(&b, d.Root)
	return b.String()
}

// Bytes 同 String。
func (d *Document) Bytes() []byte { return []byte(d.String()) }

// Render 序列化单个子树。
func Render(n *Node) string {
	var b strings.Builder
	render(&b, n)
	return b.String()
}

func render(b *strings.Builder, n *Node) {
	if n == nil {
		return
	}
	switch n.Type {
	case DocumentNode:
		for _, c := range n.children {
			render(b, c)
		}
	case TextNode:
		if n.raw != "" && !n.dirty {
			b.WriteString(n.raw)
			return
		}
		b.WriteString(html.EscapeString(n.Data))
	case CommentNode:
		if n.raw != "" {
			b.WriteString(n.raw)
			return
		}
		b.WriteString("<!--" + n.Data + "-->")
	case DoctypeNode:
		if n.raw != "" {
			b.WriteString(n.raw)
			return
		}
		b.WriteString("<!DOCTYPE " + n.Data + ">")
	case OrphanEndNode:
		if n.raw != "" {
			b.WriteString(n.raw)
			return
		}
		b.WriteString("</" + n.Tag + ">")
	case ElementNode:
		if n.raw != "" && !n.dirty {
			b.WriteString(n.raw)
		} else {
			writeStartTag(b, n)
		}
		for _, c := range n.children {
			render(b, c)
		}
		switch {
		case n.endRaw != "":
			b.WriteString(n.endRaw)
		case n.raw == "" && !n.selfClose && !voidElements[n.Tag]:
			// 新建元素总是显式闭合；解析所得的隐式闭合保持原状
			b.WriteString("</" + n.Tag + ">")
		}
	}
}

func writeStartTag(b *strings.Builder, n *Node) {
	b.WriteByte('<')
	b.WriteString(n.Tag)
	for _, a := range n.Attr {
		b.WriteByte(' ')
		b.WriteString(a.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.Val))
		b.WriteByte('"')
	}
	if n.selfClose {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
}
