package dom

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ErrParse: 输入不是可解析的标记文本。
var ErrParse = errors.New("markup not parseable")

// Document 为单个文档的可变树；Root 唯一。
type Document struct {
	Root     *Node
	src      string
	modified bool
}

// Parse 基于 x/net/html 词法器构建树，保留每个记号的原始字节。
// 结束标签关闭栈中最近的同名元素（其间元素隐式闭合）；无匹配者记为 OrphanEndNode。
func Parse(src string) (*Document, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrParse)
	}
	root := &Node{Type: DocumentNode}
	stack := []*Node{root}
	elements := 0

	z := html.NewTokenizer(strings.NewReader(src))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: %v", ErrParse, err)
			}
			break
		}
		// Raw 必须先复制：TagName/Text 会原地改写缓冲区
		raw := string(z.Raw())
		top := stack[len(stack)-1]
		switch tt {
		case html.TextToken:
			top.appendChild(&Node{Type: TextNode, Data: string(z.Text()), raw: raw})
		case html.CommentToken:
			top.appendChild(&Node{Type: CommentNode, Data: string(z.Text()), raw: raw})
		case html.DoctypeToken:
			top.appendChild(&Node{Type: DoctypeNode, Data: string(z.Text()), raw: raw})
		case html.StartTagToken, html.SelfClosingTagToken:
			name, more := z.TagName()
			n := &Node{Type: ElementNode, Tag: string(name), raw: raw, selfClose: tt == html.SelfClosingTagToken}
			for more {
				var k, v []byte
				k, v, more = z.TagAttr()
				n.Attr = append(n.Attr, html.Attribute{Key: string(k), Val: string(v)})
			}
			top.appendChild(n)
			elements++
			if tt == html.StartTagToken && !voidElements[n.Tag] {
				stack = append(stack, n)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			i := len(stack) - 1
			for i > 0 && stack[i].Tag != tag {
				i--
			}
			if i == 0 {
				top.appendChild(&Node{Type: OrphanEndNode, Tag: tag, raw: raw})
				continue
			}
			stack[i].endRaw = raw
			stack = stack[:i]
		}
	}
	if elements == 0 {
		return nil, fmt.Errorf("%w: no elements", ErrParse)
	}
	return &Document{Root: root, src: src}, nil
}

// Modified 报告是否发生过变更。
func (d *Document) Modified() bool { return d != nil && d.modified }

// MarkModified 强制标记为已修改（例如文本级预处理改写了源）。
func (d *Document) MarkModified() { d.modified = true }

// Source 返回解析时的源文本。
func (d *Document) Source() string { return d.src }

// FindAll 从根开始查询。
func (d *Document) FindAll(tag string, classes ...string) []*Node {
	return d.Root.FindAll(tag, classes...)
}

// FindFirst 从根开始查询首个匹配。
func (d *Document) FindFirst(tag string, classes ...string) *Node {
	return d.Root.FindFirst(tag, classes...)
}

// Body 返回 body 元素；不存在时返回根。
func (d *Document) Body() *Node {
	if b := d.Root.FindFirst("body"); b != nil {
		return b
	}
	return d.Root
}
