// Package rank computes order keys for board items. Keys are base-36 digit
// strings compared lexicographically; for any two keys with room between
// them Between returns a key strictly inside the gap, extending the string
// when the bounds are digit-adjacent. The package is pure and holds no state.
package rank

import "fmt"

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const base = len(alphabet)

// Seed is the key assigned to the first item of an empty lane.
const Seed = "i"

// Between returns a key strictly greater than low and strictly less than
// high. An empty low means unbounded below, an empty high unbounded above;
// Between("", "") returns Seed. Inverted or equal bounds are a caller
// contract violation and panic: they indicate a corrupted collection, not a
// recoverable condition.
func Between(low, high string) string {
	if low != "" && high != "" && low >= high {
		panic(fmt.Sprintf("rank: inverted bounds %q >= %q", low, high))
	}

	out := make([]byte, 0, len(low)+1)
	for i := 0; ; i++ {
		l := digitAt(low, i)
		h := base
		if high != "" {
			h = digitAt(high, i)
		}
		if l == h {
			if i >= len(low) && i >= len(high) {
				// Bounds differ only by trailing zero digits, e.g. "a" and
				// "a0"; no key exists between them.
				panic(fmt.Sprintf("rank: no room between %q and %q", low, high))
			}
			out = append(out, alphabet[l])
			continue
		}
		if h-l > 1 {
			out = append(out, alphabet[l+(h-l)/2])
			return string(out)
		}
		// Digit-adjacent bounds: keep low's digit, then any suffix greater
		// than low's remainder fits below high.
		out = append(out, alphabet[l])
		for j := i + 1; ; j++ {
			d := digitAt(low, j)
			if d == base-1 {
				out = append(out, alphabet[base-1])
				continue
			}
			out = append(out, alphabet[d+(base-d)/2])
			return string(out)
		}
	}
}

// IsValid reports whether s is a well-formed key: non-empty, drawn from the
// key alphabet, and not ending in the minimum digit (a trailing zero digit
// would leave no room for a key directly above the shorter prefix).
func IsValid(s string) bool {
	if s == "" || s[len(s)-1] == alphabet[0] {
		return false
	}
	for i := 0; i < len(s); i++ {
		if indexOf(s[i]) < 0 {
			return false
		}
	}
	return true
}

func digitAt(s string, i int) int {
	if i >= len(s) {
		return 0
	}
	d := indexOf(s[i])
	if d < 0 {
		panic(fmt.Sprintf("rank: invalid digit %q in key %q", s[i], s))
	}
	return d
}

func indexOf(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	default:
		return -1
	}
}
