package domain

import "reflect"

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleBot  Role = "bot"
	RoleUser Role = "user"
)

// MessageKind separates prompts from injected content and inline failures.
type MessageKind string

const (
	KindQuestion MessageKind = "question"
	KindReview   MessageKind = "review"
	KindInfo     MessageKind = "info"
	KindAnswer   MessageKind = "answer"
	// KindError is a recoverable inline failure; the visitor can retry.
	KindError MessageKind = "error"
	// KindFatal ends the conversation.
	KindFatal MessageKind = "fatal"
)

// Message is one transcript entry.
type Message struct {
	Role        Role         `json:"role"`
	Kind        MessageKind  `json:"kind"`
	NodeID      string       `json:"node_id,omitempty"`
	Text        string       `json:"text,omitempty"`
	Choices     []Choice     `json:"choices,omitempty"`
	Reviews     []ReviewCard `json:"reviews,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// SameContent reports whether two bot messages render identically for one node:
// the same text, attachment set and review cards.
func (m Message) SameContent(o Message) bool {
	if m.NodeID != o.NodeID || m.Text != o.Text || !sameReviews(m.Reviews, o.Reviews) {
		return false
	}
	if len(m.Attachments) == 0 && len(o.Attachments) == 0 {
		return true
	}
	return reflect.DeepEqual(m.Attachments, o.Attachments)
}

func sameReviews(a, b []ReviewCard) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

// SameChoices reports whether two messages for one node offer identical labels.
func (m Message) SameChoices(o Message) bool {
	if m.NodeID == "" || m.NodeID != o.NodeID || len(m.Choices) == 0 || len(m.Choices) != len(o.Choices) {
		return false
	}
	for i := range m.Choices {
		if m.Choices[i].Label != o.Choices[i].Label {
			return false
		}
	}
	return true
}
