package dom

// 查询永不失败：无匹配时返回空结果。

// Matches 报告 n 是否为指定标签（空串匹配任意元素）且包含全部 class。
func (n *Node) Matches(tag string, classes ...string) bool {
	if n == nil || n.Type != ElementNode {
		return false
	}
	if tag != "" && n.Tag != tag {
		return false
	}
	for _, c := range classes {
		if !n.HasClass(c) {
			return false
		}
	}
	return true
}

// FindAll 先序返回匹配的后代元素（不含 n 自身）。
func (n *Node) FindAll(tag string, classes ...string) []*Node {
	return n.FindAllFunc(func(m *Node) bool { return m.Matches(tag, classes...) })
}

// FindFirst 返回首个匹配的后代元素。
func (n *Node) FindFirst(tag string, classes ...string) *Node {
	var hit *Node
	n.walk(func(m *Node) bool {
		if m.Matches(tag, classes...) {
			hit = m
			return false
		}
		return true
	})
	return hit
}

// FindAllFunc 先序返回满足谓词的后代节点。
func (n *Node) FindAllFunc(pred func(*Node) bool) []*Node {
	var out []*Node
	n.walk(func(m *Node) bool {
		if pred(m) {
			out = append(out, m)
		}
		return true
	})
	return out
}

// FindByID 返回 id 精确匹配的首个后代元素。
func (n *Node) FindByID(id string) *Node {
	var hit *Node
	n.walk(func(m *Node) bool {
		if m.Type == ElementNode && m.ID() == id {
			hit = m
			return false
		}
		return true
	})
	return hit
}

// walk 先序遍历后代；fn 返回 false 时终止。
func (n *Node) walk(fn func(*Node) bool) bool {
	if n == nil {
		return true
	}
	for _, c := range n.children {
		if !fn(c) {
			return false
		}
		if !c.walk(fn) {
			return false
		}
	}
	return true
}

// Closest 返回自身或最近的匹配祖先。
func (n *Node) Closest(tag string, classes ...string) *Node {
	for m := n; m != nil; m = m.Parent {
		if m.Matches(tag, classes...) {
			return m
		}
	}
	return nil
}

// Contains 报告 m 是否位于 n 的子树内（含 n 自身）。
func (n *Node) Contains(m *Node) bool {
	for ; m != nil; m = m.Parent {
		if m == n {
			return true
		}
	}
	return false
}

// Attached 报告节点是否仍挂在某个文档根下。
func (n *Node) Attached() bool {
	m := n
	for m != nil && m.Parent != nil {
		m = m.Parent
	}
	return m != nil && m.Type == DocumentNode
}

// NextSibling 返回紧随其后的兄弟节点。
func (n *Node) NextSibling() *Node {
	if n == nil || n.Parent == nil {
		return nil
	}
	i := n.Parent.indexOf(n)
	if i < 0 || i+1 >= len(n.Parent.children) {
		return nil
	}
	return n.Parent.children[i+1]
}

// NextSignificant 按文档顺序返回 n 子树之后的首个有意义节点（跳过空白与注释）。
func (n *Node) NextSignificant() *Node {
	for m := n; m != nil && m.Parent != nil; m = m.Parent {
		for s := m.NextSibling(); s != nil; s = s.NextSibling() {
			if s.significant() {
				return s
			}
		}
	}
	return nil
}

// FirstSignificantChild 返回首个有意义子节点。
func (n *Node) FirstSignificantChild() *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		if c.significant() {
			return c
		}
	}
	return nil
}
