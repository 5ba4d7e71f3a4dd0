// Package truncate implements the drop-largest retry strategy for
// token-limit errors: when a prompt overflows the model's context window,
// the single largest supporting document is removed and the call reissued.
// Callers pass documents whose individual omission degrades gracefully.
package truncate

import (
	"errors"
	"fmt"
	"strings"

	"litassist/internal/logging"
)

// Document is one named piece of prompt content.
type Document struct {
	Name    string
	Content string
}

// BuildPromptFunc assembles the prompt from the surviving documents.
type BuildPromptFunc func(docs []Document, systemContent string) string

// ExecuteFunc issues the prompt and returns the model's response.
type ExecuteFunc func(prompt string) (string, error)

// DropFunc is notified after each drop with the removed document and the
// names of the documents still in play.
type DropFunc func(dropped Document, remaining []string)

// ErrAllDocumentsDropped is returned when the document list is exhausted
// and the call still overflows.
var ErrAllDocumentsDropped = errors.New("Failed to get LLM response after dropping all documents")

// tokenLimitMarkers identify context-window overflows in error messages.
// Matching is case-insensitive.
var tokenLimitMarkers = []string{
	"token",
	"context",
	"length",
	"too long",
	"maximum",
	"exceeded",
	"limit",
	"too many tokens",
}

// IsTokenLimitError reports whether err signals a context-window overflow.
func IsTokenLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range tokenLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Manager owns the document list for the lifetime of one retry loop. The
// zero MaxAttempts means unbounded; in practice the document count bounds
// the loop.
type Manager struct {
	Documents   []Document
	Dropped     []Document
	Attempts    int
	MaxAttempts int
}

// NewManager copies docs into a fresh retry loop.
func NewManager(docs []Document) *Manager {
	m := &Manager{Documents: make([]Document, len(docs))}
	copy(m.Documents, docs)
	return m
}

// Execute builds the prompt from the surviving documents and calls execute.
// On a token-limit error the largest document (by content length, first
// occurrence on ties) is dropped, onDrop is notified, and the call is
// reissued. Any other error propagates unchanged. When no document remains
// to drop, ErrAllDocumentsDropped is returned.
func (m *Manager) Execute(buildPrompt BuildPromptFunc, execute ExecuteFunc, onDrop DropFunc, systemContent string) (string, error) {
	for {
		if m.MaxAttempts > 0 && m.Attempts >= m.MaxAttempts {
			return "", fmt.Errorf("token-limit retries exhausted after %d attempts", m.Attempts)
		}

		result, err := execute(buildPrompt(m.Documents, systemContent))
		if err == nil {
			return result, nil
		}
		if !IsTokenLimitError(err) {
			return "", err
		}

		if len(m.Documents) == 0 {
			logging.Truncate("Token limit persists with no documents left to drop: %v", err)
			return "", ErrAllDocumentsDropped
		}

		dropped := m.dropLargest()
		m.Attempts++
		remaining := m.names()
		logging.Truncate("Token limit hit (attempt %d), dropped %q (%d chars), remaining: %s",
			m.Attempts, dropped.Name, len(dropped.Content), strings.Join(remaining, ", "))
		if onDrop != nil {
			onDrop(dropped, remaining)
		}
	}
}

// dropLargest removes and returns the document with the greatest content
// length. Ties resolve to the first occurrence.
func (m *Manager) dropLargest() Document {
	largest := 0
	for i, d := range m.Documents {
		if len(d.Content) > len(m.Documents[largest].Content) {
			largest = i
		}
	}
	dropped := m.Documents[largest]
	m.Documents = append(m.Documents[:largest], m.Documents[largest+1:]...)
	m.Dropped = append(m.Dropped, dropped)
	return dropped
}

func (m *Manager) names() []string {
	names := make([]string, len(m.Documents))
	for i, d := range m.Documents {
		names[i] = d.Name
	}
	return names
}

// ExecuteWithTruncation runs one drop-largest retry loop without keeping the
// manager around.
func ExecuteWithTruncation(buildPrompt BuildPromptFunc, docs []Document, execute ExecuteFunc, onDrop DropFunc, systemContent string) (string, error) {
	return NewManager(docs).Execute(buildPrompt, execute, onDrop, systemContent)
}
