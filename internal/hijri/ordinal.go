package hijri

import "strconv"

// ordinal renders a 1-based day index as an English ordinal: 1 -> "1st",
// 2 -> "2nd", 11 -> "11th", 21 -> "21st".
func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
		// 11th, 12th, 13th and their hundreds.
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return strconv.Itoa(n) + suffix
}
