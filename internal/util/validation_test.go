package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidAppID(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"12345", true},
		{"94575", true},
		{"9999", false},
		{"", false},
		{"12a45", false},
		{"-12345", false},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.want, IsValidAppID(tc.input))
		})
	}
}

func TestIsValidAppSecret(t *testing.T) {
	assert.True(t, IsValidAppSecret("a3406de8d171bb422bb6ddf3bbd800e2"))
	assert.True(t, IsValidAppSecret("A3406DE8D171BB422BB6DDF3BBD800E2"))
	assert.False(t, IsValidAppSecret("a3406de8d171bb422bb6ddf3bbd800e"))
	assert.False(t, IsValidAppSecret("z3406de8d171bb422bb6ddf3bbd800e2"))
	assert.False(t, IsValidAppSecret(""))
}

func TestIsValidPhone(t *testing.T) {
	assert.True(t, IsValidPhone("+79991234567"))
	assert.True(t, IsValidPhone("+1 (555) 123-4567"))
	assert.False(t, IsValidPhone("phone"))
	assert.False(t, IsValidPhone("+12"))
	assert.Equal(t, "+15551234567", NormalizePhone(" +1 (555) 123-4567 "))
}

func TestIsValidCode(t *testing.T) {
	assert.True(t, IsValidCode("12345"))
	assert.True(t, IsValidCode("1 2 3 4 5"))
	assert.True(t, IsValidCode("12-345"))
	assert.False(t, IsValidCode("abc"))
	assert.False(t, IsValidCode("123"))
	assert.Equal(t, "12345", NormalizeCode("1-2 3.4_5"))
}

func TestIsValidAnalysisKey(t *testing.T) {
	assert.True(t, IsValidAnalysisKey("sk-ant-api03-abc"))
	assert.False(t, IsValidAnalysisKey("sk-ant-"))
	assert.False(t, IsValidAnalysisKey("sk-openai-abc"))
	assert.False(t, IsValidAnalysisKey(""))
}

func TestIsValidEnum(t *testing.T) {
	valid := []string{"export", "analyze"}
	assert.True(t, IsValidEnum("export", valid))
	assert.False(t, IsValidEnum("import", valid))
	assert.False(t, IsValidEnum("", valid))
}
