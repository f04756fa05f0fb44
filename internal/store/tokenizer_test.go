package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeCode(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"camelCase", "getUserById", []string{"get", "user", "by", "id"}},
		{"snake_case", "get_user_by_id", []string{"get", "user", "by", "id"}},
		{"mixed text", "call ParseRequest here", []string{"call", "parse", "request", "here"}},
		{"short tokens dropped", "a b id ok", []string{"id", "ok"}},
		{"punctuation ignored", "foo.bar(baz)", []string{"foo", "bar", "baz"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TokenizeCode(tt.text))
		})
	}
}

func TestSplitCamelCase(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  []string
	}{
		{"camelCase", "getUserById", []string{"get", "User", "By", "Id"}},
		{"PascalCase", "ParseRequest", []string{"Parse", "Request"}},
		{"acronym", "HTTPHandler", []string{"HTTP", "Handler"}},
		{"acronym in middle", "parseHTTPRequest", []string{"parse", "HTTP", "Request"}},
		{"all lower", "handler", []string{"handler"}},
		{"all upper", "HTTP", []string{"HTTP"}},
		{"empty", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitCamelCase(tt.token))
		})
	}
}

func TestSplitCodeToken(t *testing.T) {
	assert.Equal(t, []string{"get", "User"}, SplitCodeToken("getUser"))
	assert.Equal(t, []string{"max", "retry", "Count"}, SplitCodeToken("max_retry_Count"))
	assert.Equal(t, []string{"solo"}, SplitCodeToken("solo"))
}

func TestFilterStopWords(t *testing.T) {
	stop := BuildStopWordMap([]string{"the", "func"})

	got := FilterStopWords([]string{"the", "handler", "FUNC", "retry"}, stop)

	assert.Equal(t, []string{"handler", "retry"}, got)
}
