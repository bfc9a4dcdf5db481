// Package chunker splits document text into bounded, overlapping pieces,
// the unit of embedding and storage.
package chunker

import (
	"errors"
	"fmt"
)

// ErrInvalidParams indicates invalid chunking parameters (non-positive max
// size, negative overlap, or overlap >= max size). Configuration-class:
// surfaced immediately, never retried.
var ErrInvalidParams = errors.New("invalid chunk parameters")

// Piece is one chunk of the input text. Start and End are rune offsets into
// the original text; End is exclusive. With zero overlap consecutive pieces
// tile the input exactly.
type Piece struct {
	Text  string
	Start int
	End   int
}

// Boundary classes, richest first. Within the search window ending at
// maxSize the splitter prefers a paragraph break over a line break over
// sentence-ending punctuation, and hard-cuts only when none exists.
var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
}

// Split chunks text into pieces of at most maxSize runes. After each piece,
// the next one starts overlap runes before the previous piece's end, except
// the first. Progress is clamped to at least one rune per piece so the walk
// always terminates.
//
// Empty input yields no pieces. Input shorter than maxSize yields exactly
// one piece starting at 0.
func Split(text string, maxSize, overlap int) ([]Piece, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidParams, maxSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must be non-negative, got %d", ErrInvalidParams, overlap)
	}
	if overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than max size %d", ErrInvalidParams, overlap, maxSize)
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	var pieces []Piece
	start := 0
	for start < n {
		end := start + maxSize
		if end >= n {
			end = n
		} else {
			end = boundary(runes, start, end)
		}

		pieces = append(pieces, Piece{
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})

		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			// The overlap adjustment would revisit or precede the
			// current start; clamp to one rune of progress.
			next = start + 1
		}
		start = next
	}
	return pieces, nil
}

// boundary returns the cut position in (start, limit] at the richest
// boundary found inside the window, or limit when the window has none.
func boundary(runes []rune, start, limit int) int {
	// Paragraph break: cut after the blank line.
	for i := limit - 2; i >= start; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i + 2
		}
	}
	// Line break: cut after the newline.
	for i := limit - 1; i >= start; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	// Sentence end: cut after the punctuation.
	for i := limit - 1; i >= start; i-- {
		if sentenceEnders[runes[i]] {
			return i + 1
		}
	}
	return limit
}
