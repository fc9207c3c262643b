package notion

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ToDashedID 把 32 位十六进制 id 转为 8-4-4-4-12 形式，已带连字符的输入同样接受.
func ToDashedID(id string) (string, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(id), "-", "")
	if len(raw) != 32 {
		return "", fmt.Errorf("notion id %q: want 32 hex digits, got %d", id, len(raw))
	}

	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("notion id %q: %w", id, err)
	}

	raw = strings.ToLower(raw)

	return raw[0:8] + "-" + raw[8:12] + "-" + raw[12:16] + "-" + raw[16:20] + "-" + raw[20:], nil
}

// SizeToText 以 1000 为底格式化字节数，例如 1.5MB.
func SizeToText(n int64) string {
	const unit = 1000

	if n < unit {
		return fmt.Sprintf("%dB", n)
	}

	f := float64(n)

	for _, u := range []string{"KB", "MB", "GB"} {
		f /= unit
		if f < unit {
			return fmt.Sprintf("%.1f%s", f, u)
		}
	}

	return fmt.Sprintf("%.1fTB", f/unit)
}
