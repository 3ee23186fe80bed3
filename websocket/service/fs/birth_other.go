//go:build !linux

package fs

import (
	"os"
	"time"
)

func birthTime(_ string, info os.FileInfo) time.Time {
	return info.ModTime()
}
