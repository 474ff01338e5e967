// Package palette 解析颜色值并判定明暗色调，供背景与文字对比度的分类与修复共用。
package palette

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"sitemend/pkg/contract"
	"sitemend/pkg/dom"
)

// Tone 颜色明暗。
type Tone int

const (
	Unknown Tone = iota
	Dark
	Light
)

func (t Tone) String() string {
	switch t {
	case Dark:
		return "dark"
	case Light:
		return "light"
	default:
		return "unknown"
	}
}

// TextTags 为承载文字、需要前景色的元素。
var TextTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"p": true, "li": true, "span": true, "a": true, "strong": true, "b": true, "em": true, "i": true,
}

// Palette: 主题色板与背景策略。
type Palette struct {
	DarkBackground  string `json:"dark_background" yaml:"dark_background"`
	LightBackground string `json:"light_background" yaml:"light_background"`
	LightText       string `json:"light_text" yaml:"light_text"`
	DarkText        string `json:"dark_text" yaml:"dark_text"`
	// DefaultText: 未显式设色时主题的正文颜色。
	DefaultText string `json:"default_text" yaml:"default_text"`
	// Tokens: 主题自定义属性名 → 颜色值，例如 "--awb-color1" → "#ffffff"。
	Tokens map[string]string `json:"tokens" yaml:"tokens"`
	// BackgroundProps: 视为背景声明的样式属性，按优先级排列。
	BackgroundProps []string `json:"background_props" yaml:"background_props"`
}

// Default 返回站点主题的默认色板。
func Default() Palette {
	return Palette{
		DarkBackground:  "#051334",
		LightBackground: "#ffffff",
		LightText:       "#ffffff",
		DarkText:        "#051334",
		DefaultText:     "#051334",
		Tokens: map[string]string{
			"--awb-color1": "#ffffff",
			"--awb-color5": "#101a34",
			"--awb-color7": "#0c1428",
		},
		BackgroundProps: []string{"--awb-background-color", "background-color", "background"},
	}
}

// WithDefaults 以默认值补齐零值字段。
func (p Palette) WithDefaults() Palette {
	d := Default()
	if p.DarkBackground == "" {
		p.DarkBackground = d.DarkBackground
	}
	if p.LightBackground == "" {
		p.LightBackground = d.LightBackground
	}
	if p.LightText == "" {
		p.LightText = d.LightText
	}
	if p.DarkText == "" {
		p.DarkText = d.DarkText
	}
	if p.DefaultText == "" {
		p.DefaultText = d.DefaultText
	}
	if p.Tokens == nil {
		p.Tokens = d.Tokens
	}
	if len(p.BackgroundProps) == 0 {
		p.BackgroundProps = d.BackgroundProps
	}
	return p
}

// BackgroundFor 背景策略：轮播/评价类 Section 用深色，其余用浅色。
func (p Palette) BackgroundFor(kind contract.SectionKind) string {
	if kind == contract.SectionTestimonial {
		return p.DarkBackground
	}
	return p.LightBackground
}

// Counterpart 返回与背景色调成对的高对比文字颜色。
func (p Palette) Counterpart(bg Tone) string {
	switch bg {
	case Dark:
		return p.LightText
	case Light:
		return p.DarkText
	default:
		return ""
	}
}

// Opposite 返回相反色调。
func Opposite(t Tone) Tone {
	switch t {
	case Dark:
		return Light
	case Light:
		return Dark
	default:
		return Unknown
	}
}

// Background 返回样式表中的背景声明值。
func (p Palette) Background(st *dom.Style) (string, bool) {
	for _, prop := range p.BackgroundProps {
		if d, ok := st.Get(prop); ok && strings.TrimSpace(d.Value) != "" {
			return d.Value, true
		}
	}
	return "", false
}

// SectionTone 返回 Section 背景色调；无背景声明时为 Unknown。
func (p Palette) SectionTone(section *dom.Node) Tone {
	v, ok := p.Background(dom.StyleOf(section))
	if !ok {
		return Unknown
	}
	return p.Tone(v)
}

// Foreground 解析 n 的前景色调：自身至 stop（含）最近的显式 color，否则为主题默认。
// explicit 报告是否找到显式声明。
func (p Palette) Foreground(n, stop *dom.Node) (tone Tone, explicit bool) {
	for m := n; m != nil; m = m.Parent {
		if d, ok := dom.StyleOf(m).Get("color"); ok {
			return p.Tone(d.Value), true
		}
		if m == stop {
			break
		}
	}
	return p.Tone(p.DefaultText), false
}

// IsText 报告 n 是否为含可见文字的文字元素。
func IsText(n *dom.Node) bool {
	return n.Type == dom.ElementNode && TextTags[n.Tag] && n.CollapsedText() != ""
}

// Conflicting 判定文字元素 n 的前景是否与其背景成对。
// 背景取 n 至 section（含）之间最近的、色调可判定的 Section；isSection 识别嵌套 Section。
// 背景不可判定时 bad 恒为 false。
func (p Palette) Conflicting(n, section *dom.Node, isSection func(*dom.Node) bool) (bg Tone, bad bool) {
	for m := n.Parent; m != nil; m = m.Parent {
		if m == section || isSection(m) {
			if t := p.SectionTone(m); t != Unknown {
				bg = t
				break
			}
		}
		if m == section {
			break
		}
	}
	if bg == Unknown {
		return Unknown, false
	}
	fg, _ := p.Foreground(n, section)
	return bg, fg != Opposite(bg)
}

// Conflicts 先序返回 section 内前景与背景不成对的文字元素。
func (p Palette) Conflicts(section *dom.Node, isSection func(*dom.Node) bool) []*dom.Node {
	var out []*dom.Node
	for _, n := range section.FindAllFunc(IsText) {
		if _, bad := p.Conflicting(n, section, isSection); bad {
			out = append(out, n)
		}
	}
	return out
}

// Tone 判定颜色值的明暗；无法解析时为 Unknown。
func (p Palette) Tone(value string) Tone {
	return p.tone(value, 0)
}

func (p Palette) tone(value string, depth int) Tone {
	v := strings.ToLower(strings.TrimSpace(value))
	if i := strings.Index(v, "!important"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	if v == "" || depth > 4 {
		return Unknown
	}
	if strings.HasPrefix(v, "var(") && strings.HasSuffix(v, ")") {
		name, fallback, _ := strings.Cut(v[len("var("):len(v)-1], ",")
		if mapped, ok := p.Tokens[strings.TrimSpace(name)]; ok {
			return p.tone(mapped, depth+1)
		}
		return p.tone(fallback, depth+1)
	}
	if c, ok := parseColor(v); ok {
		return toneOf(c)
	}
	// 简写（如 background: url(x) #051334 no-repeat）：取首个可识别的颜色
	if strings.ContainsAny(v, " \t") {
		for _, f := range splitTopLevel(v) {
			if t := p.tone(f, depth+1); t != Unknown {
				return t
			}
		}
	}
	return Unknown
}

func toneOf(c colorful.Color) Tone {
	l, _, _ := c.Lab()
	if l < 0.5 {
		return Dark
	}
	return Light
}

var named = map[string]string{
	"white": "#ffffff", "black": "#000000", "navy": "#000080", "gray": "#808080",
	"grey": "#808080", "silver": "#c0c0c0", "red": "#ff0000", "blue": "#0000ff",
	"yellow": "#ffff00", "whitesmoke": "#f5f5f5", "ivory": "#fffff0",
}

func parseColor(v string) (colorful.Color, bool) {
	if hex, ok := named[v]; ok {
		v = hex
	}
	if strings.HasPrefix(v, "#") {
		switch len(v) {
		case 5: // #rgba
			v = v[:4]
		case 9: // #rrggbbaa
			v = v[:7]
		}
		c, err := colorful.Hex(v)
		return c, err == nil
	}
	if strings.HasPrefix(v, "rgb(") || strings.HasPrefix(v, "rgba(") {
		inner := v[strings.IndexByte(v, '(')+1:]
		inner = strings.TrimSuffix(inner, ")")
		inner = strings.NewReplacer(",", " ", "/", " ").Replace(inner)
		var r, g, b float64
		if _, err := fmt.Sscan(inner, &r, &g, &b); err != nil {
			return colorful.Color{}, false
		}
		return colorful.Color{R: clamp(r / 255), G: clamp(g / 255), B: clamp(b / 255)}, true
	}
	return colorful.Color{}, false
}

func clamp(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// splitTopLevel 以空白切分，括号内不切分。
func splitTopLevel(v string) []string {
	var out []string
	depth := 0
	start := 0
	for i, r := range v {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case (r == ' ' || r == '\t') && depth == 0:
			if start < i {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	if start < len(v) {
		out = append(out, v[start:])
	}
	return out
}
