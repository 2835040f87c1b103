//go:build linux

package agent

import "syscall"

// diskUsage stats the filesystem holding path.
func diskUsage(path string) (used, total int64) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0
	}
	block := int64(stat.Bsize)
	total = int64(stat.Blocks) * block
	free := int64(stat.Bavail) * block
	return total - free, total
}
