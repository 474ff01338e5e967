// Package engine 对单个文档执行：属性预处理 → 解析 → 分类/修复轮次 → 终检。
//
// 每轮只处理当前最高严重度的一组缺陷；跳过或无变化的缺陷进入跳过集，不会在后续轮次反复出现。
// 文档未发生变化时不产出字节。
package engine

import (
	"context"
	"fmt"
	"time"

	"sitemend/internal/classify"
	"sitemend/internal/diag"
	"sitemend/internal/layout"
	"sitemend/internal/palette"
	"sitemend/internal/reconcile"
	"sitemend/internal/reference"
	"sitemend/internal/repair"
	"sitemend/pkg/contract"
	"sitemend/pkg/dom"
)

// Options 引擎参数。
type Options struct {
	// MaxPasses: 分类/修复轮次上限。
	MaxPasses int `json:"max_passes" yaml:"max_passes"`
	// Remote: ContentMissing 时是否向远端参考取内容；页头本地参考缺失时也回退远端。
	Remote bool `json:"remote" yaml:"remote"`
}

// DefaultOptions 默认 6 轮。
func DefaultOptions() Options { return Options{MaxPasses: 6} }

// Deps 引擎协作者；Resolver/Generator 可为空。
type Deps struct {
	Convention layout.Convention
	Palette    palette.Palette
	Reconciler *reconcile.Reconciler
	Resolver   *reference.Resolver
	Generator  contract.Generator
	// Archive: 一次加载、只读共享的归档片段。
	Archive []contract.ContentItem
	Logger  *diag.Logger
}

// Action 一次策略调用的记录。
type Action struct {
	Kind    contract.DefectKind
	Outcome repair.Outcome
	Path    string
	Detail  string
	Err     error
}

// Outcome 单文档处理结果。Output 仅在 Changed 时非空。
type Outcome struct {
	FileID    contract.FileID
	Changed   bool
	Output    []byte
	Initial   []contract.Finding
	Actions   []Action
	Remaining []contract.Finding
	Passes    int
}

// Applied 返回已生效的动作。
func (o Outcome) Applied() []Action { return o.filter(repair.Applied) }

// Skipped 返回被跳过的动作。
func (o Outcome) Skipped() []Action { return o.filter(repair.Skipped) }

func (o Outcome) filter(want repair.Outcome) []Action {
	var out []Action
	for _, a := range o.Actions {
		if a.Outcome == want {
			out = append(out, a)
		}
	}
	return out
}

// Engine 并发安全（每次 Process 使用独立的文档树）。
type Engine struct {
	opts  Options
	deps  Deps
	conv  layout.Convention
	cls   *classify.Classifier
	set   *repair.Set
	recon *reconcile.Reconciler
}

// New 构造引擎。
func New(opts Options, deps Deps) *Engine {
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = DefaultOptions().MaxPasses
	}
	conv := deps.Convention.WithDefaults()
	recon := deps.Reconciler
	if recon == nil {
		recon = reconcile.New(reconcile.Options{})
	}
	return &Engine{
		opts:  opts,
		deps:  deps,
		conv:  conv,
		cls:   classify.New(conv, deps.Palette),
		set:   repair.New(conv, deps.Palette),
		recon: recon,
	}
}

// Check 只分类，不修改：返回预处理计数与首轮缺陷（用于 check 模式）。
func (e *Engine) Check(src []byte) (attrFixes int, findings []contract.Finding, err error) {
	fixed, n := repair.NormalizeAttributeSyntax(string(src))
	doc, err := dom.Parse(fixed)
	if err != nil {
		return n, nil, err
	}
	return n, e.cls.Classify(doc), nil
}

// Process 修复单个文档。解析失败返回包装 ErrParse 的错误；ctx 取消返回 ctx.Err()。
func (e *Engine) Process(ctx context.Context, id contract.FileID, src []byte) (Outcome, error) {
	out := Outcome{FileID: id}
	tm := e.deps.Logger.StartWith("engine", "process", string(id), "")

	fixed, n := repair.NormalizeAttributeSyntax(string(src))
	if n > 0 {
		out.Initial = append(out.Initial, contract.NewFinding(contract.DefectBrokenAttributeSyntax, nil, fmt.Sprintf("%d attribute(s)", n)))
		out.Actions = append(out.Actions, Action{
			Kind: contract.DefectBrokenAttributeSyntax, Outcome: repair.Applied,
			Detail: fmt.Sprintf("%d attribute name(s) normalized", n),
		})
		diag.IncOp("repair", string(contract.DefectBrokenAttributeSyntax), repair.Applied.String())
	}
	doc, err := dom.Parse(fixed)
	if err != nil {
		t0 := time.Now()
		e.deps.Logger.ErrorWith("engine", string(diag.CodeParse), err.Error(), &t0, string(id), "")
		return out, err
	}
	out.Initial = append(out.Initial, e.cls.Classify(doc)...)

	skip := make(map[findingKey]bool)
	for pass := 1; pass <= e.opts.MaxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		group := e.nextGroup(doc, skip)
		if len(group) == 0 {
			break
		}
		out.Passes = pass
		for _, f := range group {
			res := e.apply(ctx, doc, id, f)
			if err := ctx.Err(); err != nil {
				return out, err
			}
			out.Actions = append(out.Actions, Action{Kind: f.Kind, Outcome: res.Outcome, Path: res.Path, Detail: res.Detail, Err: res.Err})
			diag.IncOp("repair", string(f.Kind), res.Outcome.String())
			kv := map[string]string{"kind": string(f.Kind), "outcome": res.Outcome.String()}
			switch res.Outcome {
			case repair.Applied:
				e.deps.Logger.DebugStart("engine", res.Detail, string(id), fmt.Sprint(pass), kv)
			case repair.Skipped:
				skip[keyOf(f)] = true
				e.deps.Logger.WarnWith("engine", string(diag.Classify(res.Err)), res.Detail, string(id), fmt.Sprint(pass), kv)
			default:
				skip[keyOf(f)] = true
			}
		}
		if t := diag.GetTerminal(); t != nil {
			t.FileProgress(pass, e.opts.MaxPasses, len(skip))
		}
	}

	out.Remaining = e.cls.Classify(doc)
	if len(out.Remaining) > 0 && out.Remaining[0].Severity == contract.SeverityStructural {
		// 结构类缺陷无法修复时，其余检查照常报告
		out.Remaining = append(out.Remaining, e.cls.NonStructural(doc)...)
	}
	out.Changed = n > 0 || doc.Modified()
	if out.Changed {
		out.Output = doc.Bytes()
	}
	tm.FinishKV("done", int64(len(out.Applied())), map[string]string{
		"changed": fmt.Sprint(out.Changed), "remaining": fmt.Sprint(len(out.Remaining)),
	})
	return out, nil
}

// nextGroup 返回未被跳过的最高严重度缺陷组；结构类缺陷全部跳过时转入内容与样式检查。
func (e *Engine) nextGroup(doc *dom.Document, skip map[findingKey]bool) []contract.Finding {
	fs := e.cls.Classify(doc)
	if len(fs) > 0 && fs[0].Severity == contract.SeverityStructural && e.allSkipped(fs, skip) {
		fs = e.cls.NonStructural(doc)
	}
	var open []contract.Finding
	for _, f := range fs {
		if !skip[keyOf(f)] {
			open = append(open, f)
		}
	}
	if len(open) == 0 {
		return nil
	}
	sev := open[0].Severity
	group := open[:0]
	for _, f := range open {
		if f.Severity == sev {
			group = append(group, f)
		}
	}
	return group
}

func (e *Engine) allSkipped(fs []contract.Finding, skip map[findingKey]bool) bool {
	for _, f := range fs {
		if !skip[keyOf(f)] {
			return false
		}
	}
	return true
}

type findingKey struct {
	kind contract.DefectKind
	node *dom.Node
}

func keyOf(f contract.Finding) findingKey { return findingKey{kind: f.Kind, node: f.Node} }

func (e *Engine) apply(ctx context.Context, doc *dom.Document, id contract.FileID, f contract.Finding) repair.Result {
	switch f.Kind {
	case contract.DefectEmptyHeader:
		ref, err := e.headerReference(ctx, id)
		if err != nil {
			return repair.Skip(err, "header reference unavailable")
		}
		return e.set.RepairEmptyHeader(doc, f.Node, ref)
	case contract.DefectMissingMainWrapper:
		var proto *dom.Node
		if ref, err := e.deps.Resolver.Resolve(ctx, reference.ModeLocal, reference.SubtreeMain); err == nil {
			proto = ref.Node
		}
		meta := e.conv.PageMetaOf(doc, id)
		return e.set.RepairMissingMainWrapper(doc, proto, meta.Title, meta.Description)
	case contract.DefectContentMissing:
		blocks, marker, err := e.content(ctx, doc, id)
		if err != nil && len(blocks) == 0 {
			return repair.Skip(err, "no content source")
		}
		return e.set.RestoreContent(doc, blocks, marker)
	case contract.DefectContentDuplicate:
		return e.set.RemoveDuplicateSection(doc, f.Node)
	case contract.DefectMissingBackground:
		return e.set.ApplyBackground(doc, f.Node, f.Section)
	case contract.DefectUnstyledText:
		return e.set.ApplyTextContrast(doc, f.Node)
	default:
		return repair.Skip(nil, "no strategy for %s", f.Kind)
	}
}

func (e *Engine) headerReference(ctx context.Context, id contract.FileID) (*dom.Node, error) {
	ref, err := e.deps.Resolver.Resolve(ctx, reference.ModeLocal, reference.SubtreeHeader)
	if err == nil {
		return ref.Node, nil
	}
	if !e.opts.Remote || !e.deps.Resolver.RemoteEnabled() {
		return nil, err
	}
	remote, rerr := e.deps.Resolver.Resolve(ctx, reference.ModeRemote, string(id))
	if rerr != nil {
		return nil, rerr
	}
	if h := e.conv.Header(remote.Doc); h != nil {
		return h, nil
	}
	return nil, fmt.Errorf("%w: %s has no header", contract.ErrReferenceNotFound, remote.URL)
}

// content 按优先级选取内容来源：归档 → 远端参考 → 占位生成（仅当前两者皆空）。
func (e *Engine) content(ctx context.Context, doc *dom.Document, id contract.FileID) ([]contract.ContentBlock, string, error) {
	if blocks := e.recon.Reconcile(e.deps.Archive, id); len(blocks) > 0 {
		return blocks, layout.MarkRestoreArchive, nil
	}
	var lastErr error
	if e.opts.Remote && e.deps.Resolver.RemoteEnabled() {
		ref, err := e.deps.Resolver.Resolve(ctx, reference.ModeRemote, string(id))
		if err == nil {
			items := reconcile.ItemsFromDocument(ref.Doc, e.conv, id)
			if blocks := e.recon.Reconcile(items, id); len(blocks) > 0 {
				return blocks, layout.MarkRestoreReference, nil
			}
		} else {
			lastErr = err
		}
	}
	if e.deps.Generator != nil {
		blocks, err := e.deps.Generator.Generate(ctx, e.conv.PageMetaOf(doc, id))
		if err == nil && len(blocks) > 0 {
			return blocks, layout.MarkRestoreGenerated, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no archive, reference or generated content", contract.ErrReferenceNotFound)
	}
	return nil, "", lastErr
}
