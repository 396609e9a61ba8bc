package storage

import "testing"

var matchTestCases = []struct {
	name     string
	str      string
	pattern  string
	expected bool
}{
	// Empty patterns
	{"empty pattern, empty string", "", "", true},
	{"empty pattern, non-empty string", "test", "", false},
	{"non-empty pattern, empty string", "", "test", false},

	// Exact matches
	{"exact match", "hello", "hello", true},
	{"exact match case sensitive", "Hello", "hello", false},
	{"exact match different", "hello", "world", false},

	// Stars
	{"single wildcard", "test", "*", true},
	{"single wildcard, empty string", "", "*", true},
	{"prefix match", "hello world", "hello*", true},
	{"prefix no match", "hi world", "hello*", false},
	{"suffix match", "hello world", "*world", true},
	{"suffix no match", "hello universe", "*world", false},
	{"middle wildcard empty middle", "helloworld", "hello*world", true},
	{"multiple wildcards", "hello world test", "hello*world*", true},
	{"multiple wildcards no match", "hello universe test", "hello*world*", false},
	{"backtracking", "aaab", "*a*ab", true},
	{"only stars", "anything", "***", true},

	// Question marks
	{"single char wildcard", "hello", "hell?", true},
	{"single char wildcard too long", "hello", "hell??", false},
	{"mixed wildcards", "hello world", "h?llo*", true},

	// Classes
	{"class", "hallo", "h[ae]llo", true},
	{"class no match", "hillo", "h[ae]llo", false},
	{"negated class", "hillo", "h[^e]llo", true},
	{"negated class no match", "hello", "h[^e]llo", false},
	{"range", "key5", "key[0-9]", true},
	{"range no match", "keyx", "key[0-9]", false},
	{"escaped bracket in class", "a]", "a[\\]]", true},

	// Escapes
	{"escaped star", "a*", "a\\*", true},
	{"escaped star no match", "ab", "a\\*", false},
	{"escaped question mark", "a?", "a\\?", true},

	// Real-world key patterns
	{"key prefix", "user:123:profile", "user:*", true},
	{"key middle", "user:123:profile", "user:*:profile", true},
	{"key complex", "cache:user:123:data", "cache:*:*:data", true},
}

func TestMatchPattern(t *testing.T) {
	for _, tc := range matchTestCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchPattern(tc.str, tc.pattern); got != tc.expected {
				t.Errorf("MatchPattern(%q, %q) = %v, want %v", tc.str, tc.pattern, got, tc.expected)
			}
		})
	}
}

func BenchmarkMatchPattern(b *testing.B) {
	for i := 0; i < b.N; i++ {
		MatchPattern("cache:user:123:data", "cache:*:*:data")
	}
}
