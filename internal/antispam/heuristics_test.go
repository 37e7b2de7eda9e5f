package antispam

import (
	"strings"
	"testing"
)

func TestCheckExcessiveCaps(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"all caps rant", "STOP IGNORING MY MESSAGES RIGHT NOW", true},
		{"normal sentence", "hello there, how are you today?", false},
		{"short shout ignored", "HELP ME", false},
		{"mixed under threshold", "This Is Mostly Normal Text Here Friend", false},
		{"digits only", "1234567890 1234567890 1234567890", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := checkExcessiveCaps(tt.text)
			if got != tt.want {
				t.Errorf("checkExcessiveCaps(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestCheckExcessiveCaps_SeverityIsRatio(t *testing.T) {
	ind, ok := checkExcessiveCaps("AAAAAAAAAAAAAAAAAAAAAAAAA")
	if !ok {
		t.Fatal("want indicator for all-caps text")
	}
	if ind.Severity != 1.0 {
		t.Errorf("severity = %v, want 1.0 for 100%% caps", ind.Severity)
	}
}

func TestCheckRepeatedChars(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"long run", "heyyyyyyyyyyyyyy", true},
		{"short run ok", "heyyyy", false},
		{"no repeats", "hello world", false},
		{"unicode run", strings.Repeat("😂", 12), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := checkRepeatedChars(tt.text)
			if got != tt.want {
				t.Errorf("checkRepeatedChars(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestCheckMentionSpam(t *testing.T) {
	six := "@111 @222 @333 @444 @555 @666"
	if _, got := checkMentionSpam(six); !got {
		t.Errorf("6 mentions: want flagged")
	}
	five := "@111 @222 @333 @444 @555"
	if _, got := checkMentionSpam(five); got {
		t.Errorf("5 mentions: want allowed")
	}
}

func TestCheckURLSpam(t *testing.T) {
	four := "http://a.com http://b.com http://c.com http://d.com"
	if _, got := checkURLSpam(four); !got {
		t.Errorf("4 urls: want flagged")
	}
	three := "see https://a.com and www.b.com and c.org today"
	if _, got := checkURLSpam(three); got {
		t.Errorf("3 urls: want allowed")
	}
}

func TestCheckSuspiciousPatterns(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"repeated short sequence", strings.Repeat("ab", 10), true},
		{"punctuation run", "are you serious??!!?!?!", true},
		{"spam phrase", "click here for FREE MONEY now", true},
		{"long digit run", "call 1234567890123456", true},
		{"ordinary text", "let's meet tomorrow at nine", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := checkSuspiciousPatterns(tt.text)
			if got != tt.want {
				t.Errorf("checkSuspiciousPatterns(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestCheckRepeatedContent(t *testing.T) {
	recent := []string{"buy my amazing product today", "unrelated message"}

	if _, got := checkRepeatedContent("buy my amazing product today", recent); !got {
		t.Error("exact repeat: want flagged")
	}
	if _, got := checkRepeatedContent("Buy  MY amazing product today!", recent); !got {
		t.Error("near repeat after normalization: want flagged")
	}
	if _, got := checkRepeatedContent("completely different topic here", recent); got {
		t.Error("different text: want allowed")
	}
	if _, got := checkRepeatedContent("anything", nil); got {
		t.Error("no history: want allowed")
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "hello", "hello", 1},
		{"both empty", "", "", 1},
		{"disjoint", "abc", "xyz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := similarity(tt.a, tt.b); got != tt.want {
				t.Errorf("similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}

	// One edit in ten runes.
	if got := similarity("aaaaaaaaaa", "aaaaaaaaab"); got != 0.9 {
		t.Errorf("similarity one edit = %v, want 0.9", got)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"empty vs text", "", "abc", 3},
		{"text vs empty", "abc", "", 3},
		{"substitution", "kitten", "sitten", 1},
		{"classic", "kitten", "sitting", 3},
		{"identical", "same", "same", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := levenshtein([]rune(tt.a), []rune(tt.b)); got != tt.want {
				t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
