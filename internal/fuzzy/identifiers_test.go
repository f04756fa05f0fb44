package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"camelCase", "where is getUserById defined", []string{"getUserById"}},
		{"PascalCase", "StreamingTextResponse docs", []string{"StreamingTextResponse"}},
		{"snake_case", "call get_user_by_id here", []string{"get_user_by_id"}},
		{"kebab-case", "deploy my-service-name now", []string{"my-service-name"}},
		{"upper snake", "increase MAX_RETRIES", []string{"MAX_RETRIES"}},
		{"dotted path", "read config.yaml", []string{"config.yaml"}},
		{"scoped package", "install @scope/my-pkg", []string{"@scope/my-pkg"}},
		{"plain words", "how does authentication work", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractIdentifiers(tt.text))
		})
	}
}

func TestExtractIdentifiers_PositionOrder(t *testing.T) {
	got := ExtractIdentifiers("compare get_user with getUser and MAX_TRIES")

	assert.Equal(t, []string{"get_user", "getUser", "MAX_TRIES"}, got)
}

func TestExtractIdentifiers_Dedupes(t *testing.T) {
	got := ExtractIdentifiers("getUserById calls getUserById twice")

	assert.Equal(t, []string{"getUserById"}, got)
}

func TestHasIdentifiers(t *testing.T) {
	assert.True(t, HasIdentifiers("find getUserById"))
	assert.True(t, HasIdentifiers("MAX_RETRIES limit"))
	assert.False(t, HasIdentifiers("how does it work"))
	assert.False(t, HasIdentifiers(""))
}
