// Package locator derives locator chains for web controls and matches
// selectors against page snapshots.
package locator

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	dayHintRe    = regexp.MustCompile(`[()（）](?:今天|明天|后天|周[一二三四五六日天]|星期[一二三四五六日天])[()（）]`)
	dynamicRes   = []*regexp.Regexp{
		regexp.MustCompile(`\d{4}[\-/.](?:1[0-2]|0?[1-9])[\-/.](?:3[01]|[12]\d|0?[1-9])`),
		regexp.MustCompile(`(?:1[0-2]|0?[1-9])月(?:3[01]|[12]\d|0?[1-9])日(?:\s*[()（）][^()（）]{0,6}[()（）])?`),
		regexp.MustCompile(`\d+\s*晚`),
		regexp.MustCompile(`\d+\s*间`),
		regexp.MustCompile(`\d+\s*位`),
	}
)

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int { return len([]rune(s)) }

// CountDigits returns the number of decimal digit runes in s.
func CountDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// CountLetters returns the number of letter runes in s.
func CountLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// CollapseSpace collapses whitespace runs to one space and trims.
func CollapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// NormText collapses whitespace and truncates to 64 runes. Text made of
// digits without any letter is discarded.
func NormText(s string) string {
	s = Truncate(CollapseSpace(s), 64)
	if CountLetters(s) == 0 && CountDigits(s) > 0 {
		return ""
	}
	return s
}

// StripDynamicTokens removes dates, day hints and counted quantities
// (nights, rooms, guests) so names survive across sessions.
func StripDynamicTokens(s string) string {
	if s == "" {
		return ""
	}
	s = dayHintRe.ReplaceAllString(s, "")
	for _, re := range dynamicRes {
		s = re.ReplaceAllString(s, " ")
	}
	return Truncate(CollapseSpace(s), 48)
}

// StableClasses returns at most two class names that do not look generated.
func StableClasses(class string) []string {
	var good []string
	for _, c := range strings.Fields(class) {
		if RuneLen(c) > 30 {
			continue
		}
		digits, letters := CountDigits(c), CountLetters(c)
		if digits > letters && digits > 3 {
			continue
		}
		good = append(good, c)
		if len(good) >= 2 {
			break
		}
	}
	return good
}

// InferRole maps a tag and input type to an implicit ARIA role.
func InferRole(tag, inputType string) string {
	switch strings.ToLower(tag) {
	case "a":
		return "link"
	case "button":
		return "button"
	case "textarea":
		return "textbox"
	case "select":
		return "combobox"
	case "input":
		switch strings.ToLower(inputType) {
		case "checkbox":
			return "checkbox"
		case "radio":
			return "radio"
		}
		return "textbox"
	}
	return ""
}

// InferAction guesses the action a control performs from its markup.
// current is returned unchanged when it is already meaningful.
func InferAction(tag, inputType, role, href, current string) string {
	switch strings.ToLower(current) {
	case "", "none", "unknown":
	default:
		return current
	}
	tag = strings.ToLower(tag)
	switch {
	case tag == "a" && href != "":
		return "navigate"
	case tag == "button" || strings.EqualFold(role, "button"):
		return "click"
	case tag == "textarea":
		return "type"
	case tag == "select":
		return "select"
	case tag == "input":
		switch strings.ToLower(inputType) {
		case "checkbox", "radio", "switch":
			return "toggle"
		case "submit":
			return "submit"
		}
		return "type"
	}
	return "click"
}
