package analysis

import "fmt"

// FormatBytes renders n with a binary unit, e.g. "1.5 KB".
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatRate renders a bytes-per-second rate.
func FormatRate(bps float64) string {
	if bps < 0 {
		bps = 0
	}
	return FormatBytes(uint64(bps)) + "/s"
}
