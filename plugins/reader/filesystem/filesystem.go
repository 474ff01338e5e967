package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"sitemend/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 扫描目录时跳过这些目录名（基名、忽略大小写）。
	// 为 nil 时使用站点构建器的默认集合（wp-content、wp-includes、wp-json、node_modules、.git）。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Extensions: 仅枚举这些扩展名的文件；为 nil 时为 .html/.htm。
	Extensions []string `json:"extensions"`
	// Exclude: doublestar 模式，按相对根的小写路径匹配，命中者不枚举。
	Exclude []string `json:"exclude"`
}

// DefaultExcludeDirNames 站点导出中不含文档的目录。
var DefaultExcludeDirNames = []string{"wp-content", "wp-includes", "wp-json", "node_modules", ".git"}

// FileSystem 按稳定顺序枚举语料根下的标记文档。
// FileID 为相对于所属根的正斜杠路径；根本身为文件时取其基名。
type FileSystem struct {
	bufSize    int
	excludeDir map[string]struct{}
	exts       map[string]struct{}
	exclude    []string
}

// New 创建 FileSystem Reader；Exclude 含非法模式时返回 ErrInvalidInput。
func New(opts *Options) (*FileSystem, error) {
	if opts == nil {
		opts = &Options{}
	}
	b := opts.BufSize
	if b <= 0 {
		b = 64 * 1024
	}
	names := opts.ExcludeDirNames
	if names == nil {
		names = DefaultExcludeDirNames
	}
	ex := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name = strings.Trim(strings.TrimSpace(name), `/\`); name != "" {
			ex[strings.ToLower(name)] = struct{}{}
		}
	}
	extList := opts.Extensions
	if extList == nil {
		extList = []string{".html", ".htm"}
	}
	exts := make(map[string]struct{}, len(extList))
	for _, e := range extList {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}
	var pats []string
	for _, p := range opts.Exclude {
		p = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(p), "\\", "/"))
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: exclude pattern %q", contract.ErrInvalidInput, p)
		}
		pats = append(pats, p)
	}
	return &FileSystem{bufSize: b, excludeDir: ex, exts: exts, exclude: pats}, nil
}

var _ contract.Reader = (*FileSystem)(nil)

// Iterate 遍历 roots，按稳定顺序对每个匹配的常规文件调用 yield。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 {
		return fmt.Errorf("%w: no corpus root", contract.ErrInvalidInput)
	}
	for _, root := range roots {
		if err := r.iterateOne(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateOne(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	// 根为符号链接：仅跟随到常规文件
	if info.Mode()&os.ModeSymlink != 0 {
		t, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !t.Mode().IsRegular() {
			return nil
		}
		return r.emit(root, filepath.Base(root), yield)
	}
	if info.IsDir() {
		return r.walkDir(ctx, root, "", yield)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return r.emit(root, filepath.Base(root), yield)
}

// walkDir: 先子目录后文件，各自按名称排序；目录符号链接不跟随。
func (r *FileSystem) walkDir(ctx context.Context, dir, rel string, yield func(contract.FileID, io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), path(rel, e.Name()), yield); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if e.Type()&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil {
				return err
			}
			if !t.Mode().IsRegular() {
				continue
			}
		} else if !e.Type().IsRegular() {
			continue
		}
		if err := r.emit(p, path(rel, e.Name()), yield); err != nil {
			return err
		}
	}
	return nil
}

// emit 按扩展名与排除模式过滤后交给 yield；yield 出错时代为关闭。
func (r *FileSystem) emit(full, rel string, yield func(contract.FileID, io.ReadCloser) error) error {
	if _, ok := r.exts[strings.ToLower(filepath.Ext(rel))]; !ok {
		return nil
	}
	id := contract.NormalizeFileID(rel)
	key := contract.PathKey(string(id))
	for _, p := range r.exclude {
		if ok, _ := doublestar.Match(p, key); ok {
			return nil
		}
	}
	f, err := os.Open(full)
	if err != nil {
		return err
	}
	brc := newBufferedCloser(f, r.bufSize)
	if err := yield(id, brc); err != nil {
		_ = brc.Close()
		return err
	}
	return nil
}

func path(rel, name string) string {
	if rel == "" {
		return name
	}
	return rel + "/" + name
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
