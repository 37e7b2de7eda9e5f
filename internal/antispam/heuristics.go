package antispam

import (
	"regexp"
	"strings"
	"unicode"
)

// Indicator is one triggered heuristic with its contribution to severity.
type Indicator struct {
	Reason   string  `json:"reason"`
	Severity float64 `json:"severity"`
}

// Heuristic reason names, stable identifiers used in violation records.
const (
	ReasonFrequency       = "message_frequency"
	ReasonRepeatedContent = "repeated_content"
	ReasonExcessiveCaps   = "excessive_caps"
	ReasonRepeatedChars   = "repeated_chars"
	ReasonMentionSpam     = "mention_spam"
	ReasonURLSpam         = "url_spam"
	ReasonSuspicious      = "suspicious_pattern"
)

const (
	similarityThreshold = 0.8
	capsRatioThreshold  = 0.7
	capsMinLetters      = 15
	capsMinLength       = 20
	charRunThreshold    = 11
	mentionLimit        = 5
	urlLimit            = 3
)

var (
	mentionPattern = regexp.MustCompile(`@\d+`)
	urlPattern     = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+|\b[a-z0-9-]+\.(?:com|net|org|io|me|ly|gg)\b`)

	// Suspicious content patterns: short-sequence repetition, punctuation
	// runs, canned spam phrases, long digit runs.
	suspiciousPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?s)(.{1,4})\1{5,}`),
		regexp.MustCompile(`[!?.]{6,}`),
		regexp.MustCompile(`(?i)\b(free money|click here|limited offer|earn \$|winner!|congratulations you)\b`),
		regexp.MustCompile(`\d{12,}`),
	}
)

// checkRepeatedContent compares normalized text against recent messages,
// returning the highest Levenshtein similarity found above the threshold.
func checkRepeatedContent(text string, recent []string) (Indicator, bool) {
	norm := normalize(text)
	if norm == "" {
		return Indicator{}, false
	}

	best := 0.0
	for _, prev := range recent {
		sim := similarity(norm, normalize(prev))
		if sim > best {
			best = sim
		}
	}

	if best > similarityThreshold {
		return Indicator{Reason: ReasonRepeatedContent, Severity: best}, true
	}
	return Indicator{}, false
}

func checkExcessiveCaps(text string) (Indicator, bool) {
	if len(text) < capsMinLength {
		return Indicator{}, false
	}

	letters, upper := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters < capsMinLetters {
		return Indicator{}, false
	}

	ratio := float64(upper) / float64(letters)
	if ratio > capsRatioThreshold {
		return Indicator{Reason: ReasonExcessiveCaps, Severity: ratio}, true
	}
	return Indicator{}, false
}

func checkRepeatedChars(text string) (Indicator, bool) {
	run := 0
	var last rune = -1
	for _, r := range text {
		if r == last {
			run++
			if run >= charRunThreshold {
				return Indicator{Reason: ReasonRepeatedChars, Severity: 1}, true
			}
		} else {
			last = r
			run = 1
		}
	}
	return Indicator{}, false
}

func checkMentionSpam(text string) (Indicator, bool) {
	if len(mentionPattern.FindAllString(text, -1)) > mentionLimit {
		return Indicator{Reason: ReasonMentionSpam, Severity: 1}, true
	}
	return Indicator{}, false
}

func checkURLSpam(text string) (Indicator, bool) {
	if len(urlPattern.FindAllString(text, -1)) > urlLimit {
		return Indicator{Reason: ReasonURLSpam, Severity: 1}, true
	}
	return Indicator{}, false
}

func checkSuspiciousPatterns(text string) (Indicator, bool) {
	for _, p := range suspiciousPatterns {
		if p.MatchString(text) {
			return Indicator{Reason: ReasonSuspicious, Severity: 1}, true
		}
	}
	return Indicator{}, false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// similarity is 1 - levenshtein(a,b)/max(len(a),len(b)), on runes.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes edit distance with a two-row matrix.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
