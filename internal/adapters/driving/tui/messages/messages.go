// Package messages defines Bubbletea message types for the TUI.
package messages

import (
	"github.com/custodia-labs/vellum/internal/core/domain"
)

// AnswerCompleted carries the result of a question back to the model.
type AnswerCompleted struct {
	// Seq identifies the request so a cancelled answer arriving late is dropped.
	Seq int

	Question string
	Result   *domain.QueryResult
	Err      error
}

// ConversationReset is sent when the user starts a new conversation.
type ConversationReset struct{}
