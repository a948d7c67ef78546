// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resilience

import (
	"errors"
	"fmt"
)

// ErrKBSkills is the base failure every Error matches with errors.Is.
var ErrKBSkills = errors.New("kbskills error")

// Kind names the external contract that failed.
type Kind string

const (
	KindLLM           Kind = "llm"
	KindEmbedding     Kind = "embedding"
	KindKnowledgeBase Kind = "knowledge base"
	KindIngestion     Kind = "ingestion"
)

// Error is a failure of one external contract.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind) + " error"
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes every Error match ErrKBSkills.
func (e *Error) Is(target error) bool { return target == ErrKBSkills }

// IsKind reports whether err carries an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// LLMError wraps err as a generation failure.
func LLMError(err error) error { return &Error{Kind: KindLLM, Err: err} }

// EmbeddingError wraps err as an embedding failure.
func EmbeddingError(err error) error { return &Error{Kind: KindEmbedding, Err: err} }

// KnowledgeBaseError wraps err as a knowledge store failure.
func KnowledgeBaseError(err error) error { return &Error{Kind: KindKnowledgeBase, Err: err} }

// IngestionError wraps err as an ingestion failure.
func IngestionError(err error) error { return &Error{Kind: KindIngestion, Err: err} }
