package util

import (
	"fmt"
	"os"
)

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// EnsureDir creates the directory (and parents) if it does not exist yet.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// HumanSizeMB renders a byte count as a megabyte string for the UI.
func HumanSizeMB(size int64) string {
	const mb = 1024 * 1024
	return fmt.Sprintf("%.2f MB", float64(size)/float64(mb))
}

// HumanSize renders a byte count with an adaptive unit.
func HumanSize(size int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)

	switch {
	case size >= gb:
		return fmt.Sprintf("%.2f GB", float64(size)/float64(gb))
	case size >= mb:
		return fmt.Sprintf("%.2f MB", float64(size)/float64(mb))
	case size >= kb:
		return fmt.Sprintf("%.2f KB", float64(size)/float64(kb))
	default:
		return fmt.Sprintf("%d Bytes", size)
	}
}
