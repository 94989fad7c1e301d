package parse

// Two-digit years on the wire are offset from 2000.
const yearBase = 2000

// ValidClock reports whether h:m:s is a wall-clock time. Leap seconds are
// rejected.
func ValidClock(h, m, s int) bool {
	return h >= 0 && h <= 23 && m >= 0 && m <= 59 && s >= 0 && s <= 59
}

// ValidDate reports whether the full year/month/day exists.
func ValidDate(y, m, d int) bool {
	if y < yearBase || y > yearBase+99 || m < 1 || m > 12 || d < 1 {
		return false
	}
	return d <= daysIn(y, m)
}

// ValidHour, ValidDay etc. check single fields for sources that deliver the
// calendar piecemeal.
func ValidHour(h int) bool   { return h >= 0 && h <= 23 }
func ValidMinute(m int) bool { return m >= 0 && m <= 59 }
func ValidSecond(s int) bool { return s >= 0 && s <= 59 }
func ValidDay(d int) bool    { return d >= 1 && d <= 31 }
func ValidMonth(m int) bool  { return m >= 1 && m <= 12 }
func ValidYear(y int) bool   { return y >= yearBase && y <= yearBase+99 }

func daysIn(y, m int) int {
	switch m {
	case 2:
		if y%4 == 0 && (y%100 != 0 || y%400 == 0) {
			return 29
		}
		return 28
	case 4, 6, 9, 11:
		return 30
	default:
		return 31
	}
}

// digitPair decodes two ASCII digits, tens first. It returns -1 if either
// byte is not a digit.
func digitPair(tens, ones byte) int {
	if tens < '0' || tens > '9' || ones < '0' || ones > '9' {
		return -1
	}
	return int(tens-'0')*10 + int(ones-'0')
}
