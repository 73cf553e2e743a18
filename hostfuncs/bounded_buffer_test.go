package hostfuncs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundedBuffer_Write(t *testing.T) {
	tests := []struct {
		name      string
		writes    []string
		limit     int
		want      string
		truncated bool
	}{
		{"under limit", []string{"abc"}, 10, "abc", false},
		{"exact limit", []string{"abcde"}, 5, "abcde", false},
		{"cut in one write", []string{"abcdefgh"}, 5, "abcde", true},
		{"cut across writes", []string{"abc", "def", "ghi"}, 5, "abcde", true},
		{"empty write at limit", []string{"abcde", ""}, 5, "abcde", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBoundedBuffer(tt.limit)
			for _, w := range tt.writes {
				n, err := b.Write([]byte(w))
				assert.NoError(t, err)
				assert.Equal(t, len(w), n)
			}
			assert.Equal(t, tt.want, b.String())
			assert.Equal(t, len(tt.want), b.Len())
			assert.Equal(t, tt.truncated, b.Truncated())
		})
	}
}

func TestBoundedBuffer_Reset(t *testing.T) {
	b := NewBoundedBuffer(2)
	_, _ = b.Write([]byte("abc"))
	assert.True(t, b.Truncated())

	b.Reset()
	assert.False(t, b.Truncated())
	assert.Equal(t, 0, b.Len())
}

func TestBoundedBuffer_BytesIsACopy(t *testing.T) {
	b := NewBoundedBuffer(10)
	_, _ = b.Write([]byte("abc"))
	out := b.Bytes()
	out[0] = 'z'
	assert.Equal(t, "abc", b.String())
}
