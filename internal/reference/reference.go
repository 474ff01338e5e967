// Package reference 提供结构参考：本地已知完好的主页子树，或按文档路径远端获取的同名页面。
//
// 两种模式对目标文档都是只读的；返回的节点属于共享的参考树，插入目标文档前必须 Clone。
package reference

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"sitemend/internal/diag"
	"sitemend/internal/layout"
	"sitemend/internal/rate"
	"sitemend/pkg/contract"
	"sitemend/pkg/dom"
)

// Mode 参考来源。
type Mode int

const (
	ModeLocal Mode = iota
	ModeRemote
)

func (m Mode) String() string {
	if m == ModeRemote {
		return "remote"
	}
	return "local"
}

// 本地模式可提取的子树名。
const (
	SubtreeHeader = "header"
	SubtreeFooter = "footer"
	SubtreeMain   = "main"
)

// Reference: Doc 为完整参考文档；Node 为请求的子树（远端模式为文档根）。
type Reference struct {
	Doc  *dom.Document
	Node *dom.Node
	URL  string
}

// Options 参考解析参数；零值字段使用 DefaultOptions。
type Options struct {
	HomeFile  string          `json:"home_file" yaml:"home_file"`
	BaseURL   string          `json:"base_url" yaml:"base_url"`
	Attempts  int             `json:"attempts" yaml:"attempts"`
	Backoff   []time.Duration `json:"-" yaml:"-"`
	Spacing   time.Duration   `json:"-" yaml:"-"`
	CacheSize int             `json:"cache_size" yaml:"cache_size"`
}

// DefaultOptions: 3 次尝试，退避 2s/3s，远端调用间隔 0.5s。
func DefaultOptions() Options {
	return Options{
		Attempts:  3,
		Backoff:   []time.Duration{2 * time.Second, 3 * time.Second},
		Spacing:   500 * time.Millisecond,
		CacheSize: 128,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Attempts <= 0 {
		o.Attempts = d.Attempts
	}
	if len(o.Backoff) == 0 {
		o.Backoff = d.Backoff
	}
	if o.Spacing <= 0 {
		o.Spacing = d.Spacing
	}
	if o.CacheSize <= 0 {
		o.CacheSize = d.CacheSize
	}
	return o
}

// Deps 可注入的协作者；均可为空。
type Deps struct {
	Fetcher contract.Fetcher
	// Gate 为空时按 Options.Spacing 构造。
	Gate   rate.Gate
	Logger *diag.Logger
	// ReadHome 为空时读取 Options.HomeFile。
	ReadHome func(ctx context.Context) ([]byte, error)
	// Sleep 为空时使用可取消的定时器。
	Sleep func(ctx context.Context, d time.Duration) error
}

// Resolver 并发安全。
type Resolver struct {
	conv layout.Convention
	opts Options
	deps Deps

	homeOnce sync.Once
	home     *dom.Document
	homeErr  error

	cache *lru.Cache[string, *dom.Document]
	group singleflight.Group
}

// New 构造解析器。
func New(conv layout.Convention, opts Options, deps Deps) (*Resolver, error) {
	opts = opts.withDefaults()
	cache, err := lru.New[string, *dom.Document](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("reference cache: %w", err)
	}
	if deps.Gate == nil {
		deps.Gate = rate.NewGate(nil, rate.Limits{Spacing: opts.Spacing}, nil)
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepCtx
	}
	if deps.ReadHome == nil {
		file := opts.HomeFile
		deps.ReadHome = func(ctx context.Context) ([]byte, error) {
			if file == "" {
				return nil, fmt.Errorf("%w: no home document configured", contract.ErrReferenceNotFound)
			}
			return os.ReadFile(file)
		}
	}
	return &Resolver{conv: conv.WithDefaults(), opts: opts, deps: deps, cache: cache}, nil
}

// RemoteEnabled 报告是否可用远端模式。
func (r *Resolver) RemoteEnabled() bool {
	return r != nil && r.deps.Fetcher != nil && r.opts.BaseURL != ""
}

// Resolve 本地模式 target 为子树名（header/footer/main）；远端模式 target 为文档 FileID。
func (r *Resolver) Resolve(ctx context.Context, mode Mode, target string) (Reference, error) {
	if r == nil {
		return Reference{}, fmt.Errorf("%w: no resolver", contract.ErrReferenceNotFound)
	}
	switch mode {
	case ModeLocal:
		return r.resolveLocal(ctx, target)
	case ModeRemote:
		return r.resolveRemote(ctx, contract.FileID(target))
	default:
		return Reference{}, fmt.Errorf("%w: mode %d", contract.ErrInvalidInput, mode)
	}
}

func (r *Resolver) resolveLocal(ctx context.Context, name string) (Reference, error) {
	r.homeOnce.Do(func() {
		b, err := r.deps.ReadHome(ctx)
		if err != nil {
			r.homeErr = fmt.Errorf("%w: home document: %w", contract.ErrReferenceNotFound, err)
			return
		}
		doc, err := dom.Parse(string(b))
		if err != nil {
			r.homeErr = fmt.Errorf("%w: home document: %w", contract.ErrReferenceNotFound, err)
			return
		}
		r.home = doc
	})
	if r.homeErr != nil {
		return Reference{}, r.homeErr
	}
	var n *dom.Node
	switch name {
	case SubtreeHeader:
		n = r.conv.Header(r.home)
	case SubtreeFooter:
		n = r.conv.Footer(r.home)
	case SubtreeMain:
		if n = r.home.FindFirst("main"); n == nil {
			n = r.conv.ContentRegion(r.home)
		}
	default:
		return Reference{}, fmt.Errorf("%w: unknown subtree %q", contract.ErrInvalidInput, name)
	}
	if n == nil {
		return Reference{}, fmt.Errorf("%w: %s subtree absent in home document", contract.ErrReferenceNotFound, name)
	}
	return Reference{Doc: r.home, Node: n}, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, id contract.FileID) (Reference, error) {
	if !r.RemoteEnabled() {
		return Reference{}, fmt.Errorf("%w: remote reference disabled", contract.ErrReferenceNotFound)
	}
	u, err := CanonicalURL(r.opts.BaseURL, id)
	if err != nil {
		return Reference{}, err
	}
	v, err, _ := r.group.Do(u, func() (any, error) {
		if doc, ok := r.cache.Get(u); ok {
			return doc, nil
		}
		body, err := r.fetchWithRetry(ctx, u, string(id))
		if err != nil {
			return nil, err
		}
		doc, err := dom.Parse(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", contract.ErrReferenceNotFound, u, err)
		}
		r.cache.Add(u, doc)
		return doc, nil
	})
	if err != nil {
		return Reference{}, err
	}
	doc := v.(*dom.Document)
	return Reference{Doc: doc, Node: doc.Root, URL: u}, nil
}

// fetchWithRetry: 网络错误、5xx、408、429 按退避重试；403 重试一次；其余 4xx 立即失败。
func (r *Resolver) fetchWithRetry(ctx context.Context, u, fileID string) ([]byte, error) {
	forbiddenRetried := false
	for attempt := 1; ; attempt++ {
		if err := r.deps.Gate.Wait(ctx, rate.Ask{Key: rate.KeyForURL(u), Requests: 1}); err != nil {
			return nil, err
		}
		t0 := time.Now()
		body, err := r.deps.Fetcher.Fetch(ctx, u)
		if err == nil {
			diag.IncOp("reference", "fetch", "success")
			diag.ObserveDuration("reference", "fetch", time.Since(t0).Milliseconds())
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		diag.IncOp("reference", "fetch", "error")

		status := 0
		var ue contract.UpstreamError
		if errors.As(err, &ue) {
			status = ue.UpstreamStatus()
		}
		retry := transient(status)
		if status == 403 {
			retry = !forbiddenRetried
			forbiddenRetried = true
		}
		kv := map[string]string{"url": u, "attempt": fmt.Sprint(attempt)}
		if status != 0 {
			kv["http_status"] = fmt.Sprint(status)
		}
		if !retry {
			r.deps.Logger.ErrorWithKV("reference", string(diag.CodeReference), err.Error(), &t0, fileID, "", kv)
			return nil, fmt.Errorf("%w: %s: %w", contract.ErrReferenceNotFound, u, err)
		}
		if attempt >= r.opts.Attempts {
			r.deps.Logger.ErrorWithKV("reference", string(diag.CodeNetwork), "retries exhausted: "+err.Error(), &t0, fileID, "", kv)
			return nil, fmt.Errorf("%w: %w: %s after %d attempt(s): %w", contract.ErrReferenceNotFound, contract.ErrNetwork, u, attempt, err)
		}
		r.deps.Logger.WarnWith("reference", string(diag.CodeNetwork), "retry: "+err.Error(), fileID, "", kv)
		if err := r.deps.Sleep(ctx, r.backoff(attempt)); err != nil {
			return nil, err
		}
	}
}

func (r *Resolver) backoff(attempt int) time.Duration {
	i := attempt - 1
	if i >= len(r.opts.Backoff) {
		i = len(r.opts.Backoff) - 1
	}
	return r.opts.Backoff[i]
}

// transient: 非 HTTP 错误（status=0）视为瞬时网络错误。
func transient(status int) bool {
	switch {
	case status == 0, status >= 500, status == 408, status == 429:
		return true
	default:
		return false
	}
}

// CanonicalURL: 路径段拼接；去掉 index.html/index.htm，其他 .html/.htm 去扩展名；保证尾斜杠。
func CanonicalURL(base string, id contract.FileID) (string, error) {
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil || b.Scheme == "" || b.Host == "" {
		return "", fmt.Errorf("%w: base url %q", contract.ErrInvalidInput, base)
	}
	p := strings.TrimLeft(string(contract.NormalizeFileID(string(id))), "/")
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%w: %q escapes site root", contract.ErrPathInvalid, id)
	}
	if p == "." {
		p = ""
	}
	var segs []string
	if p != "" {
		segs = strings.Split(p, "/")
	}
	if n := len(segs); n > 0 {
		last := segs[n-1]
		switch ext := strings.ToLower(path.Ext(last)); {
		case strings.EqualFold(last, "index.html"), strings.EqualFold(last, "index.htm"):
			segs = segs[:n-1]
		case ext == ".html" || ext == ".htm":
			segs[n-1] = strings.TrimSuffix(last, path.Ext(last))
		}
	}
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	out := strings.TrimRight(b.String(), "/") + "/"
	if len(segs) > 0 {
		out += strings.Join(segs, "/") + "/"
	}
	return out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
