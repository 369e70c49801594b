package usage

import "fmt"

// FormatMinutes renders minutes as "5h 20m", dropping a zero part ("2h").
// With minimal set only the largest unit is shown: "5h", or "20m" under an
// hour. Zero renders as "0m".
func FormatMinutes(minutes int64, minimal bool) string {
	if minutes < 0 {
		minutes = 0
	}
	hours, rest := minutes/60, minutes%60

	if minimal {
		if hours > 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dm", rest)
	}

	switch {
	case hours > 0 && rest > 0:
		return fmt.Sprintf("%dh %dm", hours, rest)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dm", rest)
	}
}
