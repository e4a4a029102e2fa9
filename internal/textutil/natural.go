package textutil

import (
	"strings"
	"unicode"
)

// NaturalLess reports whether a sorts before b when runs of digits are
// compared by numeric value and everything else case-insensitively.
func NaturalLess(a, b string) bool {
	return NaturalCompare(a, b) < 0
}

// NaturalCompare returns -1, 0 or 1 using the NaturalLess ordering.
func NaturalCompare(a, b string) int {
	ar, br := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		if unicode.IsDigit(ar[i]) && unicode.IsDigit(br[j]) {
			si, ei := digitRun(ar, i)
			sj, ej := digitRun(br, j)
			if c := compareDigits(ar[si:ei], br[sj:ej]); c != 0 {
				return c
			}
			// Equal values: fewer leading zeros first.
			if ei-i != ej-j {
				if ei-i < ej-j {
					return -1
				}
				return 1
			}
			i, j = ei, ej
			continue
		}
		if ar[i] != br[j] {
			if ar[i] < br[j] {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case len(ar)-i < len(br)-j:
		return -1
	case len(ar)-i > len(br)-j:
		return 1
	}
	return 0
}

// digitRun returns the start of the significant digits and the end of the run
// starting at i.
func digitRun(r []rune, i int) (int, int) {
	end := i
	for end < len(r) && unicode.IsDigit(r[end]) {
		end++
	}
	start := i
	for start < end-1 && r[start] == '0' {
		start++
	}
	return start, end
}

func compareDigits(a, b []rune) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	for k := range a {
		if a[k] != b[k] {
			if a[k] < b[k] {
				return -1
			}
			return 1
		}
	}
	return 0
}
