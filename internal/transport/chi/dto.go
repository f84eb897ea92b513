package chi

import (
	"encoding/json"
	"time"

	"github.com/malibio/nodespace-core-logic/internal/domain/answer"
	"github.com/malibio/nodespace-core-logic/internal/domain/node"
	"github.com/malibio/nodespace-core-logic/internal/domain/search/result"
)

// ErrorCode is the machine-readable error discriminator in error responses.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest         ErrorCode = "bad_request"
	CodeValidationFailed   ErrorCode = "validation_failed"
	CodeNotFound           ErrorCode = "not_found"
	CodeCycleDetected      ErrorCode = "cycle_detected"
	CodeEmbeddingProvider  ErrorCode = "embedding_provider_error"
	CodeGenerationProvider ErrorCode = "generation_provider_error"
	CodeStorageError       ErrorCode = "storage_error"
	CodeServiceNotReady    ErrorCode = "service_not_ready"
	CodeInternalError      ErrorCode = "internal_error"
)

// ErrorResponse is the error payload for all endpoints.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// UpsertRequest is the POST /nodes payload.
type UpsertRequest struct {
	NodeID   string          `json:"node_id,omitempty"`
	RootKey  string          `json:"root_key,omitempty"`
	ParentID string          `json:"parent_id,omitempty"`
	BeforeID string          `json:"before_sibling_id,omitempty"`
	Type     string          `json:"type"`
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// UpsertResponse returns the stable node identity.
type UpsertResponse struct {
	NodeID string `json:"node_id"`
}

// NodeResponse is the wire shape of a node.
type NodeResponse struct {
	NodeID    string          `json:"node_id"`
	Type      string          `json:"type"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	ParentID  string          `json:"parent_id,omitempty"`
	RootID    string          `json:"root_id"`
	PrevID    string          `json:"prev_sibling_id,omitempty"`
	NextID    string          `json:"next_sibling_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SearchRequest is the POST /search payload.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// SearchResultItem is one ranked hit.
type SearchResultItem struct {
	NodeID  string  `json:"node_id"`
	Level   string  `json:"level"`
	Score   float64 `json:"score"`
	Fused   float64 `json:"fused_score"`
	Content string  `json:"content,omitempty"`
}

// SearchResponse carries the fused hits and the intent the router chose.
type SearchResponse struct {
	Intent  string             `json:"intent"`
	Results []SearchResultItem `json:"results"`
}

// AnswerRequest is the POST /answer payload.
type AnswerRequest struct {
	Question string `json:"question"`
}

// AnswerSource attributes one node backing the answer.
type AnswerSource struct {
	NodeID       string    `json:"node_id"`
	Content      string    `json:"content"`
	Score        float64   `json:"retrieval_score"`
	Tokens       int       `json:"context_tokens"`
	Type         string    `json:"node_type"`
	LastModified time.Time `json:"last_modified"`
}

// AnswerResponse is the RAG response payload.
type AnswerResponse struct {
	Answer     string         `json:"answer"`
	Confidence float64        `json:"confidence"`
	ElapsedMS  int64          `json:"elapsed_ms"`
	Sources    []AnswerSource `json:"sources"`
	Degraded   bool           `json:"degraded,omitempty"`
}

// InsightsResponse is the generated node analysis.
type InsightsResponse struct {
	NodeID   string `json:"node_id"`
	Insights string `json:"insights"`
}

// DateNodesResponse lists a day's nodes with adjacent-day navigation flags.
type DateNodesResponse struct {
	Date        string         `json:"date"`
	Nodes       []NodeResponse `json:"nodes"`
	HasPrevious bool           `json:"has_previous"`
	HasNext     bool           `json:"has_next"`
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func nodeToWire(n *node.Node) NodeResponse {
	resp := NodeResponse{
		NodeID:    n.ID(),
		Type:      string(n.Type()),
		Content:   n.Content(),
		ParentID:  n.ParentID(),
		RootID:    n.RootID(),
		PrevID:    n.PrevID(),
		NextID:    n.NextID(),
		CreatedAt: n.CreatedAt(),
		UpdatedAt: n.UpdatedAt(),
	}
	if n.Meta() != nil {
		if raw, err := node.EncodeMeta(n.Meta()); err == nil {
			resp.Metadata = raw
		}
	}
	return resp
}

func resultToWire(r *result.Result) SearchResultItem {
	return SearchResultItem{
		NodeID:  r.NodeID(),
		Level:   string(r.Level()),
		Score:   r.Score(),
		Fused:   r.Fused(),
		Content: r.Content(),
	}
}

func answerToWire(resp *answer.Response) AnswerResponse {
	sources := make([]AnswerSource, len(resp.Sources))
	for i, s := range resp.Sources {
		sources[i] = AnswerSource{
			NodeID:       s.NodeID,
			Content:      s.Content,
			Score:        s.Score,
			Tokens:       s.Tokens,
			Type:         string(s.Type),
			LastModified: s.LastModified,
		}
	}
	return AnswerResponse{
		Answer:     resp.Answer,
		Confidence: resp.Confidence,
		ElapsedMS:  resp.Elapsed.Milliseconds(),
		Sources:    sources,
		Degraded:   resp.Degraded,
	}
}
