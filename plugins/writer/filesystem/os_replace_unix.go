//go:build !windows

package filesystem

import "os"

// osReplace: POSIX rename 在同一文件系统内原子替换目标文件。
func osReplace(tmpPath, dest string) error {
	return os.Rename(tmpPath, dest)
}

// syncDir 同步目录项，使替换在崩溃后仍可见。
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
