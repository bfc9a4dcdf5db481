package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Config{})
	assert.Error(t, err)
}

func TestBuildPrompt_WithContext(t *testing.T) {
	results := []vectorstore.SearchResult{
		{ID: "a", Text: "The capital of France is Paris.", Score: 0.1},
		{ID: "b", Text: "France is in Europe.", Score: 0.4},
	}
	prompt := buildPrompt("What is the capital of France?", results)

	assert.Contains(t, prompt, "[1] The capital of France is Paris.")
	assert.Contains(t, prompt, "[2] France is in Europe.")
	assert.Contains(t, prompt, "Question: What is the capital of France?")
	// Most relevant chunk comes first.
	assert.Less(t,
		strings.Index(prompt, "Paris"),
		strings.Index(prompt, "Europe"))
}

func TestBuildPrompt_NoContext(t *testing.T) {
	prompt := buildPrompt("anything", nil)
	assert.Contains(t, prompt, "no matching documents")
	assert.Contains(t, prompt, "Question: anything")
}
