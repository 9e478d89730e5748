package video

import (
	"fmt"
	"regexp"
	"strconv"
)

// timecodePattern は "H?H:MM:SS" または "M?M:SS" 形式にマッチします。
var timecodePattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// ParseTimecode は時刻文字列を秒数に変換します。
// "1:05:30" -> 3930、"2:15" -> 135。
func ParseTimecode(value string) (int, error) {
	match := timecodePattern.FindStringSubmatch(value)
	if match == nil {
		return 0, fmt.Errorf("invalid time format: %q (expected HH:MM:SS or MM:SS)", value)
	}

	first, _ := strconv.Atoi(match[1])
	second, _ := strconv.Atoi(match[2])

	if match[3] == "" {
		// M?M:SS
		if second >= 60 {
			return 0, fmt.Errorf("invalid time format: %q (seconds out of range)", value)
		}
		return first*60 + second, nil
	}

	// H?H:MM:SS
	third, _ := strconv.Atoi(match[3])
	if second >= 60 || third >= 60 {
		return 0, fmt.Errorf("invalid time format: %q (minutes or seconds out of range)", value)
	}
	return first*3600 + second*60 + third, nil
}

// FormatTimecode は秒数を時刻文字列へ変換します。
// 3930 -> "01:05:30"、135 -> "02:15"。
func FormatTimecode(total int) string {
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
