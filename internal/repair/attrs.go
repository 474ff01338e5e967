package repair

import (
	"strings"

	"golang.org/x/net/html"
)

// NormalizeAttributeSyntax 将起始标签内的 name_= 改写为 name=，返回新文本与改写次数。
// 只改写属性名位置：文本、注释、script/style 等原始文本元素以及属性值原样保留。
func NormalizeAttributeSyntax(src string) (string, int) {
	var (
		b        strings.Builder
		count    int
		consumed int
	)
	b.Grow(len(src))
	z := html.NewTokenizer(strings.NewReader(src))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := string(z.Raw())
		consumed += len(raw)
		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			fixed, n := fixStartTag(raw)
			count += n
			raw = fixed
		}
		b.WriteString(raw)
	}
	// 末尾未完成的片段原样保留
	if consumed < len(src) {
		b.WriteString(src[consumed:])
	}
	if count == 0 {
		return src, 0
	}
	return b.String(), count
}

// fixStartTag 扫描单个起始标签的原文，去掉已知损坏属性名末尾的下划线。
func fixStartTag(tag string) (string, int) {
	var b strings.Builder
	count := 0
	i := 1
	// 标签名
	for i < len(tag) && !isSpace(tag[i]) && tag[i] != '/' && tag[i] != '>' {
		i++
	}
	b.WriteString(tag[:i])
	for i < len(tag) {
		c := tag[i]
		if isSpace(c) || c == '/' || c == '>' {
			b.WriteByte(c)
			i++
			continue
		}
		start := i
		i++
		for i < len(tag) && !isSpace(tag[i]) && tag[i] != '/' && tag[i] != '>' && tag[i] != '=' {
			i++
		}
		name := tag[start:i]
		j := i
		for j < len(tag) && isSpace(tag[j]) {
			j++
		}
		hasValue := j < len(tag) && tag[j] == '='
		if hasValue && brokenName(name) {
			name = name[:len(name)-1]
			count++
		}
		b.WriteString(name)
		if !hasValue {
			continue
		}
		// '=' 与值
		j++
		for j < len(tag) && isSpace(tag[j]) {
			j++
		}
		if j < len(tag) && (tag[j] == '"' || tag[j] == '\'') {
			if end := strings.IndexByte(tag[j+1:], tag[j]); end >= 0 {
				j += end + 2
			} else {
				j = len(tag)
			}
		} else {
			for j < len(tag) && !isSpace(tag[j]) && tag[j] != '>' {
				j++
			}
		}
		b.WriteString(tag[i:j])
		i = j
	}
	return b.String(), count
}

// brokenName: [a-zA-Z][a-zA-Z0-9:-]*_ 形式的属性名。
func brokenName(name string) bool {
	if len(name) < 2 || name[len(name)-1] != '_' || !isLetter(name[0]) {
		return false
	}
	for k := 1; k < len(name)-1; k++ {
		c := name[k]
		if !isLetter(c) && !(c >= '0' && c <= '9') && c != ':' && c != '-' {
			return false
		}
	}
	return true
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
