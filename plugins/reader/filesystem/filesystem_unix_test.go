//go:build !windows

package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 非常规文件被忽略
func TestWalkDirNonRegular(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, syscall.Mkfifo(filepath.Join(root, "pipe.html"), 0o644))
	ids, _ := collect(t, mustNew(t, nil), root)
	assert.Empty(t, ids)
}

// 文件符号链接被跟随，目录符号链接不跟随
func TestIterateSymlinks(t *testing.T) {
	outside := t.TempDir()
	writeFile(t, outside, "t.html", "ok")
	writeFile(t, outside, "sub/x.html", "x")

	root := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(outside, "t.html"), filepath.Join(root, "l.html")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "sub"), filepath.Join(root, "linked")))

	ids, bodies := collect(t, mustNew(t, nil), root)
	assert.Equal(t, []string{"l.html"}, ids)
	assert.Equal(t, "ok", bodies["l.html"])

	// 根本身为文件符号链接
	ids, _ = collect(t, mustNew(t, nil), filepath.Join(root, "l.html"))
	assert.Equal(t, []string{"l.html"}, ids)
}

// 悬空符号链接返回错误
func TestIterateDanglingSymlink(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(root, "nope.html"), filepath.Join(root, "d.html")))
	err := mustNew(t, nil).Iterate(testContext(t), []string{root}, nil)
	assert.Error(t, err)
}

// testContext 返回在测试结束时取消的上下文（等价于 Go 1.24 的 t.Context）。
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
