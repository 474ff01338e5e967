package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitemend/pkg/contract"
)

func noTemps(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".sitemend-"), "临时文件未清理: %s", e.Name())
	}
}

// UT-WFS-01: 原子写替换已有文件并保留权限
func TestWriteAtomicInPlace(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "blog", "post")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	target := filepath.Join(sub, "index.html")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o600))

	w, err := New(&Options{Root: dir})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), "blog/post/index.html", bytes.NewBufferString("v2")))

	b, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(b))
	if runtime.GOOS != "windows" {
		st, err := os.Stat(target)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
	}
	noTemps(t, sub)
}

// UT-WFS-02: 非原子写创建目录
func TestWriteNonAtomic(t *testing.T) {
	dir := t.TempDir()
	a := false
	w, err := New(&Options{Root: dir, Atomic: &a})
	require.NoError(t, err)
	require.NoError(t, w.Write(context.Background(), "sub/out.html", bytes.NewBufferString("v")))
	_, err = os.Stat(filepath.Join(dir, "sub", "out.html"))
	assert.NoError(t, err)
}

// UT-WFS-03: 越界路径
func TestWritePathInvalid(t *testing.T) {
	w, err := New(&Options{Root: t.TempDir()})
	require.NoError(t, err)
	for _, id := range []contract.FileID{"../bad.html", "..", "."} {
		assert.ErrorIs(t, w.Write(context.Background(), id, bytes.NewBufferString("x")), contract.ErrPathInvalid, id)
	}
	abs := contract.FileID("/abs.html")
	if runtime.GOOS == "windows" {
		abs = `C:\abs.html`
	}
	_, err = w.mapPath(abs)
	assert.ErrorIs(t, err, contract.ErrPathInvalid)
}

// UT-WFS-04: 取消与参数缺失
func TestWriteCtxCancelAndNew(t *testing.T) {
	w, err := New(&Options{Root: t.TempDir()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Write(ctx, "a.html", strings.NewReader("data")), context.Canceled)

	_, err = New(nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = New(&Options{Root: "  "})
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

// UT-WFS-05: 拷贝失败时包装 ErrIOWrite 且不留临时文件
func TestWriteAtomicCopyError(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{Root: dir})
	require.NoError(t, err)
	err = w.Write(context.Background(), "a.html", errReader{})
	assert.ErrorIs(t, err, contract.ErrIOWrite)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

// UT-WFS-06: ctxReader 在读取前检查取消
func TestReaderWithCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := readerWithCtx(ctx, strings.NewReader("data"))
	cancel()
	_, err := r.Read(make([]byte, 1))
	assert.Error(t, err)
}
