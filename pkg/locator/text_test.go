package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "  Sign \n\t in  ", "Sign in"},
		{"digits only", " 2025 ", ""},
		{"mixed", "Top 10", "Top 10"},
		{"empty", "", ""},
		{"truncates", "abcdefghij" + "abcdefghij" + "abcdefghij" + "abcdefghij" + "abcdefghij" + "abcdefghij" + "abcdefghij", "abcdefghij" + "abcdefghij" + "abcdefghij" + "abcdefghij" + "abcdefghij" + "abcdefghij" + "abcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormText(tt.in))
		})
	}
}

func TestStripDynamicTokens(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"入住 11月12日(今天) 退房", "入住 退房"},
		{"Check-in 2025-11-12", "Check-in"},
		{"From 2025/12/31 to 2026.1.20 go", "From to go"},
		{"入住 12月25日 离店 1月3日", "入住 离店"},
		{"2 晚 1 间 2 位 成人", "成人"},
		{"酒店(明天)", "酒店"},
		{"Search hotels", "Search hotels"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripDynamicTokens(tt.in))
		})
	}
}

func TestStableClasses(t *testing.T) {
	assert.Equal(t, []string{"btn", "btn-primary"}, StableClasses("btn btn-primary large"))
	assert.Equal(t, []string{"btn"}, StableClasses("a1234567b btn"))
	assert.Equal(t, []string{"ok"}, StableClasses("this-class-name-is-way-too-long-to-keep ok"))
	assert.Empty(t, StableClasses(""))
}

func TestInferRole(t *testing.T) {
	tests := []struct {
		tag, typ, want string
	}{
		{"A", "", "link"},
		{"button", "", "button"},
		{"textarea", "", "textbox"},
		{"select", "", "combobox"},
		{"input", "checkbox", "checkbox"},
		{"input", "radio", "radio"},
		{"input", "text", "textbox"},
		{"div", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferRole(tt.tag, tt.typ), tt.tag+"/"+tt.typ)
	}
}

func TestInferAction(t *testing.T) {
	tests := []struct {
		tag, typ, role, href, current string
		expected                      string
	}{
		{"a", "", "", "/x", "", "navigate"},
		{"a", "", "", "", "", "click"},
		{"div", "", "button", "", "none", "click"},
		{"textarea", "", "", "", "unknown", "type"},
		{"select", "", "", "", "", "select"},
		{"input", "checkbox", "", "", "", "toggle"},
		{"input", "submit", "", "", "", "submit"},
		{"input", "text", "", "", "", "type"},
		{"input", "text", "", "", "select", "select"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, InferAction(tt.tag, tt.typ, tt.role, tt.href, tt.current), tt.tag+"/"+tt.typ)
	}
}
