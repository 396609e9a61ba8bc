package storage

// MatchPattern reports whether key matches a Redis glob pattern.
//
// Supported syntax:
//
//	*        any sequence, including the empty one
//	?        exactly one byte
//	[abc]    one byte from the set
//	[^abc]   one byte outside the set
//	[a-z]    one byte in the range
//	\x       the literal x
//
// Matching is byte oriented, like Redis. A star remembers where it was seen
// so a mismatch later backtracks to it instead of recursing.
func MatchPattern(key, pattern string) bool {
	var (
		p, k         int
		starP, starK = -1, -1
	)

	for k < len(key) {
		if p < len(pattern) {
			switch pattern[p] {
			case '*':
				for p < len(pattern) && pattern[p] == '*' {
					p++
				}
				if p == len(pattern) {
					return true
				}
				starP, starK = p, k
				continue
			case '?':
				p++
				k++
				continue
			case '[':
				if matched, next := matchClass(pattern, p, key[k]); matched {
					p = next
					k++
					continue
				}
			case '\\':
				if p+1 < len(pattern) && pattern[p+1] == key[k] {
					p += 2
					k++
					continue
				}
				if p+1 == len(pattern) && key[k] == '\\' {
					p++
					k++
					continue
				}
			default:
				if pattern[p] == key[k] {
					p++
					k++
					continue
				}
			}
		}

		if starP < 0 {
			return false
		}
		starK++
		p, k = starP, starK
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// matchClass evaluates the bracket expression starting at pattern[start]
// against c. It returns the index just past the closing bracket. An
// unterminated class runs to the end of the pattern, as in Redis.
func matchClass(pattern string, start int, c byte) (matched bool, next int) {
	i := start + 1
	negate := false
	if i < len(pattern) && pattern[i] == '^' {
		negate = true
		i++
	}

	for i < len(pattern) && pattern[i] != ']' {
		switch {
		case pattern[i] == '\\' && i+1 < len(pattern):
			i++
			if pattern[i] == c {
				matched = true
			}
			i++
		case i+2 < len(pattern) && pattern[i+1] == '-' && pattern[i+2] != ']':
			lo, hi := pattern[i], pattern[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				matched = true
			}
			i += 3
		default:
			if pattern[i] == c {
				matched = true
			}
			i++
		}
	}

	if i < len(pattern) {
		i++ // closing bracket
	}
	if negate {
		matched = !matched
	}
	return matched, i
}
