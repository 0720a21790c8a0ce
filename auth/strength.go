package auth

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nbutton23/zxcvbn-go"
)

// StrengthLabel is the six-level categorical strength rating.
type StrengthLabel string

const (
	LabelVeryWeak   StrengthLabel = "very-weak"
	LabelWeak       StrengthLabel = "weak"
	LabelFair       StrengthLabel = "fair"
	LabelGood       StrengthLabel = "good"
	LabelStrong     StrengthLabel = "strong"
	LabelVeryStrong StrengthLabel = "very-strong"
)

// StrengthReport is the structured result of analyzing a candidate password.
// Purely derived from the password string; nothing is persisted.
type StrengthReport struct {
	Score       int           // 0..100
	Label       StrengthLabel
	Feedback    []string
	EntropyBits float64
	CrackTime   string
	ZXCVBNScore int // 0..4 cross-check from zxcvbn, advisory only
}

// Character-class charset sizes used for the entropy estimate.
const (
	charsetLower  = 26
	charsetUpper  = 26
	charsetDigit  = 10
	charsetSymbol = 32
)

var commonSequences = []string{"123", "abc", "qwe"}

// weakPasswords is a small static denylist; containment of any entry is
// penalized. Online breach checks live in hibp.go and are the caller's choice.
var weakPasswords = []string{
	"password",
	"123456",
	"12345678",
	"qwerty",
	"letmein",
	"welcome",
	"admin",
	"iloveyou",
	"monkey",
	"dragon",
}

// Analyze scores a candidate password and returns structured feedback. It is
// a pure analysis function: enforcement of a minimum acceptable score belongs
// to callers (see ValidateMasterPassword).
func Analyze(password string) StrengthReport {
	var (
		score    int
		feedback []string
	)

	switch n := utf8.RuneCountInString(password); {
	case n < 8:
		feedback = append(feedback, "use at least 8 characters; 12 or more is recommended")
	case n < 12:
		score += 10
	case n < 16:
		score += 20
	default:
		score += 25
	}

	classes := presentClasses(password)
	score += 10 * classes.count()
	if classes.count() < 3 {
		feedback = append(feedback, "mix lowercase, uppercase, digits, and symbols")
	}

	if hasRepeatedRun(password, 3) {
		score -= 10
		feedback = append(feedback, "avoid repeating the same character three or more times")
	}

	lower := strings.ToLower(password)
	for _, seq := range commonSequences {
		if strings.Contains(lower, seq) {
			score -= 15
			feedback = append(feedback, "avoid common sequences like 123 or abc")
			break
		}
	}

	for _, weak := range weakPasswords {
		if strings.Contains(lower, weak) {
			score -= 25
			feedback = append(feedback, "contains a commonly used password")
			break
		}
	}

	entropy := entropyBits(password, classes)
	score += entropyBonus(entropy)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	report := StrengthReport{
		Score:       score,
		Label:       labelFor(score),
		Feedback:    feedback,
		EntropyBits: entropy,
		CrackTime:   crackTimeEstimate(entropy),
	}
	if password != "" {
		report.ZXCVBNScore = zxcvbn.PasswordStrength(password, nil).Score
	}
	return report
}

type classSet struct {
	lower, upper, digit, symbol bool
}

func (c classSet) count() int {
	n := 0
	for _, present := range []bool{c.lower, c.upper, c.digit, c.symbol} {
		if present {
			n++
		}
	}
	return n
}

func presentClasses(s string) classSet {
	var c classSet
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsDigit(r):
			c.digit = true
		default:
			c.symbol = true
		}
	}
	return c
}

func hasRepeatedRun(s string, minRun int) bool {
	run := 0
	var prev rune = -1
	for _, r := range s {
		if r == prev {
			run++
			if run >= minRun {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

// entropyBits estimates log2(charsetSize^length) for the present classes.
func entropyBits(password string, c classSet) float64 {
	if password == "" {
		return 0
	}
	charset := 0
	if c.lower {
		charset += charsetLower
	}
	if c.upper {
		charset += charsetUpper
	}
	if c.digit {
		charset += charsetDigit
	}
	if c.symbol {
		charset += charsetSymbol
	}
	if charset == 0 {
		return 0
	}
	return float64(utf8.RuneCountInString(password)) * math.Log2(float64(charset))
}

// entropyBonus rewards passwords whose estimated entropy exceeds what the
// additive class/length rules can express on their own.
func entropyBonus(bits float64) int {
	switch {
	case bits >= 80:
		return 20
	case bits >= 60:
		return 10
	default:
		return 0
	}
}

func labelFor(score int) StrengthLabel {
	switch {
	case score < 20:
		return LabelVeryWeak
	case score < 40:
		return LabelWeak
	case score < 60:
		return LabelFair
	case score < 80:
		return LabelGood
	case score < 90:
		return LabelStrong
	default:
		return LabelVeryStrong
	}
}

// crackTimeEstimate assumes 1e9 guesses per second against 2^(entropy-1)
// average guesses and buckets the result into a human-readable range.
func crackTimeEstimate(entropyBits float64) string {
	if entropyBits <= 0 {
		return "less than a minute"
	}
	seconds := math.Pow(2, entropyBits-1) / 1e9

	const (
		minute  = 60.0
		hour    = 60 * minute
		day     = 24 * hour
		year    = 365.25 * day
		century = 100 * year
	)

	switch {
	case seconds < minute:
		return "less than a minute"
	case seconds < hour:
		return fmt.Sprintf("%d minutes", int(seconds/minute))
	case seconds < day:
		return fmt.Sprintf("%d hours", int(seconds/hour))
	case seconds < year:
		return fmt.Sprintf("%d days", int(seconds/day))
	case seconds < century:
		return fmt.Sprintf("%d years", int(seconds/year))
	default:
		return "centuries"
	}
}
