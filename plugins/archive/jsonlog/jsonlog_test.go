package jsonlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitemend/pkg/contract"
)

func loaderFor(t *testing.T, body []byte, extra string) *Loader {
	t.Helper()
	p := filepath.Join(t.TempDir(), "rewrite_progress.json")
	require.NoError(t, os.WriteFile(p, body, 0o644))
	l, err := New([]byte(`{"path":` + quote(p) + extra + `}`))
	require.NoError(t, err)
	return l
}

func quote(s string) string { return `"` + filepath.ToSlash(s) + `"` }

// UT-ARC-01: rewritten 容器、反斜杠键、数字与字符串 id
func TestLoadRewritten(t *testing.T) {
	body := []byte(`{"rewritten":[
		{"file":"site\\Blog\\Post\\index.html","tag":"H2","id":"7","original":" Why it works "},
		{"file":"site\\blog\\post\\index.html","tag":"p","id":3,"original":"First paragraph."},
		{"file":"site/blog/post/index.html","tag":"li","original":"item"},
		{"file":"","tag":"p","id":1,"original":"orphan"},
		{"file":"site/a.html","tag":"p","id":2,"original":"   "}
	],"done":12}`)
	items, err := loaderFor(t, body, `,"strip_prefix":"site"`).Load(context.Background())
	require.NoError(t, err)

	want := []contract.ContentItem{
		{SourceFile: "blog/post/index.html", Kind: contract.KindHeading, Level: 2, Tag: "h2", Sequence: 7, Text: "Why it works"},
		{SourceFile: "blog/post/index.html", Kind: contract.KindParagraph, Tag: "p", Sequence: 3, Text: "First paragraph."},
		{SourceFile: "blog/post/index.html", Kind: contract.KindListItem, Tag: "li", Sequence: 2, Text: "item"},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Fatalf("记录解码不符 (-want +got):\n%s", diff)
	}
}

// UT-ARC-02: 裸数组、BOM、windows-1252 回退
func TestLoadBareArrayLegacyEncoding(t *testing.T) {
	body := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`[{"file":"a.html","tag":"div","id":1.0,"original":"caf`)...)
	body = append(body, 0xE9)
	body = append(body, []byte(` menu"}]`)...)
	items, err := loaderFor(t, body, "").Load(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "café menu", items[0].Text)
	assert.Equal(t, contract.KindOther, items[0].Kind)
	assert.EqualValues(t, 1, items[0].Sequence)
}

// UT-ARC-03: 错误输入
func TestLoadErrors(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = New([]byte(`{"path":"x","extra":1}`))
	assert.Error(t, err)

	_, err = loaderFor(t, []byte(`{"other":[]}`), "").Load(context.Background())
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = loaderFor(t, []byte(`{not json`), "").Load(context.Background())
	assert.ErrorIs(t, err, contract.ErrInvalidInput)

	l, err := New([]byte(`{"path":"/nonexistent/progress.json"}`))
	require.NoError(t, err)
	_, err = l.Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// UT-ARC-04: 自定义容器键
func TestLoadCustomKey(t *testing.T) {
	items, err := loaderFor(t, []byte(`{"items":[{"file":"x.html","tag":"h1","id":"n/a","original":"T"}]}`), `,"key":"items"`).
		Load(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.EqualValues(t, 0, items[0].Sequence, "非数字 id 使用记录位置")
}
