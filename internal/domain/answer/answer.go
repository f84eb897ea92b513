// Package answer defines the RAG response value objects.
package answer

import (
	"time"

	"github.com/malibio/nodespace-core-logic/internal/domain/node"
)

// Source is one attributed node backing an answer.
type Source struct {
	NodeID       string    `json:"node_id"`
	Content      string    `json:"content"`
	Score        float64   `json:"score"`
	Tokens       int       `json:"tokens"`
	Type         node.Type `json:"type"`
	LastModified time.Time `json:"last_modified"`
}

// Response is the result of a RAG query.
type Response struct {
	Answer     string        `json:"answer"`
	Confidence float64       `json:"confidence"`
	Elapsed    time.Duration `json:"elapsed"`
	Sources    []Source      `json:"sources"`
	// Degraded marks answers produced without the generation provider
	// (timeout or failure); callers may surface it as a hint.
	Degraded bool `json:"degraded,omitempty"`
}

// Degraded texts returned when generation is unavailable.
const (
	// NoContextAnswer is returned when retrieval found nothing relevant.
	NoContextAnswer = "I found no relevant information to answer your question."
	// UnavailableAnswer is returned when the generation provider failed or timed out.
	UnavailableAnswer = "I apologize, but I'm currently unable to generate a response. Please try again later."
)

// DegradedResponse builds the fixed fallback response for generation failures.
func DegradedResponse(elapsed time.Duration) Response {
	return Response{
		Answer:     UnavailableAnswer,
		Confidence: 0,
		Elapsed:    elapsed,
		Sources:    []Source{},
		Degraded:   true,
	}
}
