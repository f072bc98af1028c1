package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstitute(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"name":   "Ana",
		"age":    float64(18),
		"active": true,
		"nilval": nil,
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "Hello there", "Hello there"},
		{"single variable", "Hi #{name}", "Hi Ana"},
		{"multiple variables", "#{name} is #{age}", "Ana is 18"},
		{"unknown variable renders empty", "Hi #{ghost}!", "Hi !"},
		{"bool value", "active=#{active}", "active=true"},
		{"nil value renders empty", "v=#{nilval}", "v="},
		{"dots and dashes in names", "#{contact.first-name}", ""},
		{"unterminated placeholder left alone", "Hi #{name", "Hi #{name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Substitute(tt.in, data))
		})
	}
}

func TestSubstitute_FloatFormatting(t *testing.T) {
	t.Parallel()

	// JSON numbers decode as float64; whole numbers must not grow a ".0".
	data := map[string]any{"count": float64(3), "price": 9.5}
	assert.Equal(t, "3 items at 9.5", Substitute("#{count} items at #{price}", data))
}
