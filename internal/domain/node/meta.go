package node

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/malibio/nodespace-core-logic/internal/domain"
)

// Type is the node kind.
type Type string

// Node type constants.
const (
	Text  Type = "text"
	Task  Type = "task"
	Image Type = "image"
	Date  Type = "date"
	// AIChat nodes store a chat thread; only the title (content) is ever
	// embedded, the thread itself lives in metadata.
	AIChat Type = "ai-chat"
)

// IsValid checks if the type is one of the supported values.
func (t Type) IsValid() bool {
	return t == Text || t == Task || t == Image || t == Date || t == AIChat
}

// Metadata is the closed set of per-type metadata variants. Variants are
// validated at the upsert boundary and are never embedded.
type Metadata interface {
	Kind() Type
	// Mentions returns outgoing node links for related-node traversal.
	Mentions() []string
	Validate() error
}

// TextMeta is the metadata variant for text nodes.
type TextMeta struct {
	Links []string `json:"links,omitempty"`
}

// Kind returns the text type tag.
func (m TextMeta) Kind() Type { return Text }

// Mentions returns outgoing node links.
func (m TextMeta) Mentions() []string { return m.Links }

// Validate always succeeds for text metadata.
func (m TextMeta) Validate() error { return nil }

// TaskMeta is the metadata variant for task nodes.
type TaskMeta struct {
	Done  bool      `json:"done"`
	Due   time.Time `json:"due,omitempty"`
	Links []string  `json:"links,omitempty"`
}

// Kind returns the task type tag.
func (m TaskMeta) Kind() Type { return Task }

// Mentions returns outgoing node links.
func (m TaskMeta) Mentions() []string { return m.Links }

// Validate always succeeds for task metadata.
func (m TaskMeta) Validate() error { return nil }

// ImageMeta is the metadata variant for image nodes.
type ImageMeta struct {
	URI     string   `json:"uri"`
	AltText string   `json:"alt_text,omitempty"`
	Links   []string `json:"links,omitempty"`
}

// Kind returns the image type tag.
func (m ImageMeta) Kind() Type { return Image }

// Mentions returns outgoing node links.
func (m ImageMeta) Mentions() []string { return m.Links }

// Validate requires a URI for image nodes.
func (m ImageMeta) Validate() error {
	if m.URI == "" {
		return fmt.Errorf("image metadata requires uri: %w", domain.ErrValidation)
	}
	return nil
}

// DateMeta is the metadata variant for date root nodes.
type DateMeta struct {
	// Description is the human-readable form, e.g. "Saturday, June 15, 2024".
	Description string `json:"description,omitempty"`
}

// Kind returns the date type tag.
func (m DateMeta) Kind() Type { return Date }

// Mentions returns no links; date nodes only organize.
func (m DateMeta) Mentions() []string { return nil }

// Validate always succeeds for date metadata.
func (m DateMeta) Validate() error { return nil }

// AIChatMeta is the metadata variant for ai-chat nodes.
type AIChatMeta struct {
	ThreadID     string   `json:"thread_id"`
	MessageCount int      `json:"message_count,omitempty"`
	Links        []string `json:"links,omitempty"`
}

// Kind returns the ai-chat type tag.
func (m AIChatMeta) Kind() Type { return AIChat }

// Mentions returns outgoing node links.
func (m AIChatMeta) Mentions() []string { return m.Links }

// Validate requires a thread reference for ai-chat nodes.
func (m AIChatMeta) Validate() error {
	if m.ThreadID == "" {
		return fmt.Errorf("ai-chat metadata requires thread_id: %w", domain.ErrValidation)
	}
	if m.MessageCount < 0 {
		return fmt.Errorf("ai-chat message_count must be non-negative: %w", domain.ErrValidation)
	}
	return nil
}

// zeroMeta returns the empty variant for a type.
func zeroMeta(t Type) Metadata {
	switch t {
	case Task:
		return TaskMeta{}
	case Image:
		return ImageMeta{}
	case Date:
		return DateMeta{}
	case AIChat:
		return AIChatMeta{}
	default:
		return TextMeta{}
	}
}

// EncodeMeta serializes a metadata variant to JSON (storage hydration).
func EncodeMeta(m Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return data, nil
}

// DecodeMeta deserializes a metadata variant for the given type.
// Empty data yields the zero variant.
func DecodeMeta(t Type, data []byte) (Metadata, error) {
	if len(data) == 0 {
		return zeroMeta(t), nil
	}
	var err error
	switch t {
	case Task:
		var m TaskMeta
		err = json.Unmarshal(data, &m)
		return m, err
	case Image:
		var m ImageMeta
		err = json.Unmarshal(data, &m)
		return m, err
	case Date:
		var m DateMeta
		err = json.Unmarshal(data, &m)
		return m, err
	case AIChat:
		var m AIChatMeta
		err = json.Unmarshal(data, &m)
		return m, err
	default:
		var m TextMeta
		err = json.Unmarshal(data, &m)
		return m, err
	}
}
