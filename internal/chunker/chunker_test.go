package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_InvalidParams(t *testing.T) {
	tests := []struct {
		name    string
		maxSize int
		overlap int
	}{
		{"zero max size", 0, 0},
		{"negative max size", -1, 0},
		{"negative overlap", 100, -1},
		{"overlap equals max size", 100, 100},
		{"overlap exceeds max size", 100, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split("some text", tt.maxSize, tt.overlap)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	pieces, err := Split("", 1000, 200)
	require.NoError(t, err)
	assert.Empty(t, pieces)
}

func TestSplit_ShortInput(t *testing.T) {
	pieces, err := Split("hello world", 1000, 200)
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, "hello world", pieces[0].Text)
	assert.Equal(t, 0, pieces[0].Start)
	assert.Equal(t, 11, pieces[0].End)
}

func TestSplit_OverlapWindow(t *testing.T) {
	// 1500 uniform runes with no boundaries: the second piece starts
	// overlap runes before the first piece's end.
	text := strings.Repeat("A", 1500)
	pieces, err := Split(text, 1000, 200)
	require.NoError(t, err)
	require.Len(t, pieces, 2)

	assert.Equal(t, 0, pieces[0].Start)
	assert.Equal(t, 1000, pieces[0].End)
	assert.Equal(t, 800, pieces[1].Start)
	assert.Equal(t, 1500, pieces[1].End)
	assert.Len(t, pieces[1].Text, 700)
}

func TestSplit_ZeroOverlapTiles(t *testing.T) {
	text := strings.Repeat("A", 2500)
	pieces, err := Split(text, 1000, 0)
	require.NoError(t, err)
	require.Len(t, pieces, 3)

	for i := 1; i < len(pieces); i++ {
		assert.Equal(t, pieces[i-1].End, pieces[i].Start, "pieces must tile exactly")
	}
	assert.Equal(t, 2500, pieces[len(pieces)-1].End)
}

func TestSplit_PrefersParagraphBreak(t *testing.T) {
	text := strings.Repeat("x", 50) + "\n\n" + strings.Repeat("y", 100)
	pieces, err := Split(text, 60, 0)
	require.NoError(t, err)
	require.NotEmpty(t, pieces)

	// The first window contains a paragraph break at offset 50; the cut
	// lands right after it even though a hard cut at 60 was possible.
	assert.Equal(t, 52, pieces[0].End)
	assert.True(t, strings.HasSuffix(pieces[0].Text, "\n\n"))
}

func TestSplit_PrefersLineBreakOverSentence(t *testing.T) {
	text := "first sentence.\nsecond line without end " + strings.Repeat("z", 50)
	pieces, err := Split(text, 30, 0)
	require.NoError(t, err)
	require.NotEmpty(t, pieces)

	// Window [0,30) holds both a '.' at 14 and a '\n' at 15; the line
	// break wins.
	assert.Equal(t, "first sentence.\n", pieces[0].Text)
}

func TestSplit_SentenceBoundary(t *testing.T) {
	pieces, err := Split("Hello world. Goodbye now.", 20, 0)
	require.NoError(t, err)
	require.Len(t, pieces, 2)
	assert.Equal(t, "Hello world.", pieces[0].Text)
	assert.Equal(t, " Goodbye now.", pieces[1].Text)
}

func TestSplit_CJKSentenceBoundary(t *testing.T) {
	pieces, err := Split("你好世界。再见了。", 5, 0)
	require.NoError(t, err)
	require.Len(t, pieces, 2)
	assert.Equal(t, "你好世界。", pieces[0].Text)
	assert.Equal(t, "再见了。", pieces[1].Text)
}

func TestSplit_RuneOffsets(t *testing.T) {
	// Offsets are rune positions, not byte positions.
	text := "héllo wörld, this has multibyte runes in it"
	pieces, err := Split(text, 10, 2)
	require.NoError(t, err)
	require.NotEmpty(t, pieces)

	runes := []rune(text)
	for _, p := range pieces {
		assert.Equal(t, string(runes[p.Start:p.End]), p.Text)
	}
}

func TestSplit_AlwaysTerminates(t *testing.T) {
	// Dense boundaries plus a large overlap force the progress clamp.
	text := strings.Repeat(".", 100)
	pieces, err := Split(text, 10, 9)
	require.NoError(t, err)
	require.NotEmpty(t, pieces)

	prev := -1
	for _, p := range pieces {
		assert.Greater(t, p.Start, prev, "start positions must strictly advance")
		prev = p.Start
	}
}
