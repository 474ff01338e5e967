package dom

import (
	"strings"

	"github.com/gorilla/css/scanner"
)

// Decl 单条样式声明。
type Decl struct {
	Prop      string
	Value     string
	Important bool
}

// Style 为元素 style 属性的有序声明表（文档级样式侧表的一行）。
type Style struct {
	decls []Decl
}

// ParseStyle 解析 style 属性文本；无法识别的片段丢弃。
func ParseStyle(s string) *Style {
	st := &Style{}
	for _, chunk := range splitDecls(s) {
		prop, val, ok := strings.Cut(chunk, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		if prop == "" {
			continue
		}
		val = strings.TrimSpace(val)
		imp := false
		if i := importantIndex(val); i >= 0 {
			imp = true
			val = strings.TrimSpace(val[:i])
		}
		st.decls = append(st.decls, Decl{Prop: prop, Value: val, Important: imp})
	}
	return st
}

// StyleOf 读取元素的样式表。
func StyleOf(n *Node) *Style { return ParseStyle(n.Get("style")) }

// SetStyle 回写样式表；文本未变化时不视为修改，空表删除属性。
func (d *Document) SetStyle(n *Node, st *Style) {
	s := st.String()
	if s == "" {
		d.RemoveAttr(n, "style")
		return
	}
	if cur, ok := n.AttrValue("style"); ok && ParseStyle(cur).String() == s {
		return
	}
	d.SetAttr(n, "style", s)
}

// splitDecls 以顶层分号切分；函数括号、字符串与 url() 中的分号不切分。
func splitDecls(s string) []string {
	var out []string
	var cur strings.Builder
	depth := 0
	flush := func() {
		if strings.TrimSpace(cur.String()) != "" {
			out = append(out, cur.String())
		}
		cur.Reset()
	}
	sc := scanner.New(s)
	for {
		tok := sc.Next()
		switch tok.Type {
		case scanner.TokenEOF:
			flush()
			return out
		case scanner.TokenError:
			return naiveSplit(s)
		case scanner.TokenComment:
			continue
		case scanner.TokenFunction:
			depth++
		case scanner.TokenChar:
			switch tok.Value {
			case "(":
				depth++
			case ")":
				if depth > 0 {
					depth--
				}
			case ";":
				if depth == 0 {
					flush()
					continue
				}
			}
		}
		cur.WriteString(tok.Value)
	}
}

func naiveSplit(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ";") {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func importantIndex(v string) int {
	i := strings.LastIndexByte(v, '!')
	if i < 0 {
		return -1
	}
	if strings.EqualFold(strings.TrimSpace(v[i+1:]), "important") {
		return i
	}
	return -1
}

// Get 返回属性的最后一条声明（后者覆盖前者）。
func (s *Style) Get(prop string) (Decl, bool) {
	prop = strings.ToLower(prop)
	for i := len(s.decls) - 1; i >= 0; i-- {
		if s.decls[i].Prop == prop {
			return s.decls[i], true
		}
	}
	return Decl{}, false
}

// Has 报告是否存在该属性声明。
func (s *Style) Has(prop string) bool {
	_, ok := s.Get(prop)
	return ok
}

// Set 设置声明：替换首个同名声明并删除其余同名者；不存在则追加。
func (s *Style) Set(prop, val string, important bool) {
	prop = strings.ToLower(prop)
	d := Decl{Prop: prop, Value: strings.TrimSpace(val), Important: important}
	out := s.decls[:0]
	placed := false
	for _, x := range s.decls {
		if x.Prop != prop {
			out = append(out, x)
			continue
		}
		if !placed {
			out = append(out, d)
			placed = true
		}
	}
	if !placed {
		out = append(out, d)
	}
	s.decls = out
}

// Remove 删除全部同名声明。
func (s *Style) Remove(prop string) bool {
	prop = strings.ToLower(prop)
	out := s.decls[:0]
	removed := false
	for _, x := range s.decls {
		if x.Prop == prop {
			removed = true
			continue
		}
		out = append(out, x)
	}
	s.decls = out
	return removed
}

// Decls 返回声明快照。
func (s *Style) Decls() []Decl { return append([]Decl(nil), s.decls...) }

// Len 声明数量。
func (s *Style) Len() int { return len(s.decls) }

// String 输出规范形式 "prop:value;"，重要性以 " !important" 追加。
func (s *Style) String() string {
	var b strings.Builder
	for _, d := range s.decls {
		b.WriteString(d.Prop)
		b.WriteByte(':')
		b.WriteString(d.Value)
		if d.Important {
			b.WriteString(" !important")
		}
		b.WriteByte(';')
	}
	return b.String()
}
