package reference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sitemend/internal/layout"
	"sitemend/pkg/contract"
	"sitemend/pkg/dom"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

const home = `<html><body><div class="fusion-tb-header"><nav><a href="/">Home</a></nav></div>` +
	`<main id="main"><div class="post-content"><div class="fusion-fullwidth fullwidth-box"><h1>Hi</h1></div></div></main>` +
	`<div class="fusion-tb-footer"><p>foot</p></div></body></html>`

type httpErr struct{ code int }

func (e httpErr) Error() string           { return fmt.Sprintf("http %d", e.code) }
func (e httpErr) UpstreamStatus() int     { return e.code }
func (e httpErr) UpstreamMessage() string { return "" }

// scripted 依次返回预设错误，耗尽后返回 body。
type scripted struct {
	mu    sync.Mutex
	errs  []error
	body  string
	calls atomic.Int32
	urls  []string
}

func (s *scripted) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, url)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return []byte(s.body), nil
}

type sleeps struct {
	mu sync.Mutex
	ds []time.Duration
}

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.ds = append(s.ds, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newRemote(t *testing.T, f *scripted, sl *sleeps) *Resolver {
	t.Helper()
	r, err := New(layout.Default(), Options{BaseURL: "https://example.com", Spacing: time.Millisecond}, Deps{Fetcher: f, Sleep: sl.sleep})
	require.NoError(t, err)
	return r
}

// UT-REF-01: 本地模式提取页头/页脚/主体，主页只读取一次
func TestResolveLocal(t *testing.T) {
	var reads atomic.Int32
	r, err := New(layout.Default(), Options{}, Deps{ReadHome: func(ctx context.Context) ([]byte, error) {
		reads.Add(1)
		return []byte(home), nil
	}})
	require.NoError(t, err)
	ctx := context.Background()

	h, err := r.Resolve(ctx, ModeLocal, SubtreeHeader)
	require.NoError(t, err)
	assert.Equal(t, `<div class="fusion-tb-header"><nav><a href="/">Home</a></nav></div>`, dom.Render(h.Node))

	f, err := r.Resolve(ctx, ModeLocal, SubtreeFooter)
	require.NoError(t, err)
	assert.Equal(t, "foot", f.Node.CollapsedText())

	m, err := r.Resolve(ctx, ModeLocal, SubtreeMain)
	require.NoError(t, err)
	assert.Equal(t, "main", m.Node.Tag)
	assert.Same(t, h.Doc, m.Doc)
	assert.Equal(t, int32(1), reads.Load())

	_, err = r.Resolve(ctx, ModeLocal, "sidebar")
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

// UT-REF-02: 主页缺失或子树缺失均为 ErrReferenceNotFound
func TestResolveLocalMissing(t *testing.T) {
	r, err := New(layout.Default(), Options{}, Deps{})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), ModeLocal, SubtreeHeader)
	assert.ErrorIs(t, err, contract.ErrReferenceNotFound)

	r, err = New(layout.Default(), Options{}, Deps{ReadHome: func(context.Context) ([]byte, error) {
		return []byte(`<html><body><p>bare</p></body></html>`), nil
	}})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), ModeLocal, SubtreeHeader)
	assert.ErrorIs(t, err, contract.ErrReferenceNotFound)
}

// UT-REF-03: 规范 URL
func TestCanonicalURL(t *testing.T) {
	cases := []struct {
		id   contract.FileID
		want string
	}{
		{"index.html", "https://example.com/"},
		{"blog/post/index.html", "https://example.com/blog/post/"},
		{"Services\\SEO\\index.htm", "https://example.com/Services/SEO/"},
		{"about.html", "https://example.com/about/"},
		{"./a/b.htm", "https://example.com/a/b/"},
		{"", "https://example.com/"},
		{"a b/index.html", "https://example.com/a%20b/"},
	}
	for _, c := range cases {
		got, err := CanonicalURL("https://example.com/", c.id)
		require.NoError(t, err, c.id)
		assert.Equal(t, c.want, got, c.id)
	}
	_, err := CanonicalURL("https://example.com", "../x.html")
	assert.ErrorIs(t, err, contract.ErrPathInvalid)
	_, err = CanonicalURL("not a url", "x.html")
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

// UT-REF-04: 瞬时错误按退避重试，成功结果进入缓存
func TestRemoteRetryAndCache(t *testing.T) {
	f := &scripted{errs: []error{errors.New("connection reset"), httpErr{503}}, body: home}
	sl := &sleeps{}
	r := newRemote(t, f, sl)

	ref, err := r.Resolve(context.Background(), ModeRemote, "blog/post/index.html")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/blog/post/", ref.URL)
	assert.Equal(t, int32(3), f.calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second}, sl.ds)
	require.NotNil(t, ref.Doc.FindFirst("main"))

	again, err := r.Resolve(context.Background(), ModeRemote, "blog/post/index.html")
	require.NoError(t, err)
	assert.Same(t, ref.Doc, again.Doc)
	assert.Equal(t, int32(3), f.calls.Load(), "缓存命中不再请求")
}

// UT-REF-05: 重试耗尽同时包装 ErrNetwork 与 ErrReferenceNotFound
func TestRemoteExhausted(t *testing.T) {
	f := &scripted{errs: []error{httpErr{500}, httpErr{502}, httpErr{504}}}
	r := newRemote(t, f, &sleeps{})
	_, err := r.Resolve(context.Background(), ModeRemote, "a.html")
	require.Error(t, err)
	assert.ErrorIs(t, err, contract.ErrNetwork)
	assert.ErrorIs(t, err, contract.ErrReferenceNotFound)
	assert.Equal(t, int32(3), f.calls.Load())
}

// UT-REF-06: 404 立即失败；403 只重试一次
func TestRemoteClientErrors(t *testing.T) {
	f := &scripted{errs: []error{httpErr{404}}}
	r := newRemote(t, f, &sleeps{})
	_, err := r.Resolve(context.Background(), ModeRemote, "gone.html")
	assert.ErrorIs(t, err, contract.ErrReferenceNotFound)
	assert.NotErrorIs(t, err, contract.ErrNetwork)
	assert.Equal(t, int32(1), f.calls.Load())

	f = &scripted{errs: []error{httpErr{403}, httpErr{403}}, body: home}
	r = newRemote(t, f, &sleeps{})
	_, err = r.Resolve(context.Background(), ModeRemote, "private.html")
	assert.ErrorIs(t, err, contract.ErrReferenceNotFound)
	assert.Equal(t, int32(2), f.calls.Load())

	f = &scripted{errs: []error{httpErr{403}}, body: home}
	r = newRemote(t, f, &sleeps{})
	_, err = r.Resolve(context.Background(), ModeRemote, "flaky.html")
	assert.NoError(t, err)
}

// UT-REF-07: 未配置远端时不发请求；取消的 ctx 立即返回
func TestRemoteDisabledAndCancel(t *testing.T) {
	r, err := New(layout.Default(), Options{}, Deps{})
	require.NoError(t, err)
	assert.False(t, r.RemoteEnabled())
	_, err = r.Resolve(context.Background(), ModeRemote, "a.html")
	assert.ErrorIs(t, err, contract.ErrReferenceNotFound)

	f := &scripted{body: home}
	r = newRemote(t, f, &sleeps{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Resolve(ctx, ModeRemote, "a.html")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), f.calls.Load())
}

// UT-REF-08: 并发解析同一页面只请求一次
func TestRemoteSingleflight(t *testing.T) {
	f := &scripted{body: home}
	r := newRemote(t, f, &sleeps{})
	var wg sync.WaitGroup
	docs := make([]*dom.Document, 8)
	for i := range docs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := r.Resolve(context.Background(), ModeRemote, "same.html")
			if err == nil {
				docs[i] = ref.Doc
			}
		}(i)
	}
	wg.Wait()
	for _, d := range docs {
		require.NotNil(t, d)
		assert.Same(t, docs[0], d)
	}
	assert.Equal(t, int32(1), f.calls.Load())
}
