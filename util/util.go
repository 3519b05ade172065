// Package util contains misc internal utilities.
package util

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultFilename builds an output file name from the last element of the
// device path, the channel and the local time, e.g. usbtmc0_ch1_17.10_142305.txt.
// ':' is avoided so the name is valid on FAT32.
func DefaultFilename(device string, channel int, t time.Time) string {
	base := filepath.Base(device)
	if base == "." || base == string(filepath.Separator) {
		base = "scope"
	}
	base = strings.ReplaceAll(base, ":", "_")
	return fmt.Sprintf("%s_ch%d_%s.txt", base, channel, t.Format("02.01_150405"))
}
