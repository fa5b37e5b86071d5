package domain

// FlowState is the controller's position in the conversation lifecycle.
type FlowState string

const (
	StateInitializing   FlowState = "INITIALIZING"
	StateAwaitingChoice FlowState = "AWAITING_CHOICE"
	StateTerminated     FlowState = "TERMINATED"
)

// ReviewState is the serializable part of a review selector.
type ReviewState struct {
	Pool  []ReviewCard `json:"pool,omitempty"`
	Used  []string     `json:"used,omitempty"`
	Shown []string     `json:"shown,omitempty"`
}

// ConversationSnapshot captures everything needed to resume one conversation.
type ConversationSnapshot struct {
	ID          string               `json:"id"`
	FlowID      string               `json:"flow_id,omitempty"`
	Product     *ProductContext      `json:"product,omitempty"`
	State       FlowState            `json:"state"`
	CurrentNode *QuestionNode        `json:"current_node,omitempty"`
	DisplayedAt int64                `json:"displayed_at,omitempty"` // unix millis
	Transcript  []Message            `json:"transcript"`
	RedirectURL string               `json:"redirect_url,omitempty"`
	Session     *ConversationSession `json:"session,omitempty"`
	Reviews     ReviewState          `json:"reviews"`

	// Sealed carries an encrypted snapshot. When set, only ID and State are
	// populated in the clear.
	Sealed []byte `json:"sealed,omitempty"`
}

// Terminated reports whether the conversation has ended.
func (s *ConversationSnapshot) Terminated() bool {
	return s.State == StateTerminated
}

// Clone returns a deep copy so stores can isolate their data from callers.
func (s *ConversationSnapshot) Clone() *ConversationSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	if s.Product != nil {
		p := *s.Product
		out.Product = &p
	}
	out.CurrentNode = s.CurrentNode.Clone()
	out.Transcript = append([]Message(nil), s.Transcript...)
	if s.Session != nil {
		sess := *s.Session
		out.Session = &sess
	}
	out.Reviews = ReviewState{
		Pool:  append([]ReviewCard(nil), s.Reviews.Pool...),
		Used:  append([]string(nil), s.Reviews.Used...),
		Shown: append([]string(nil), s.Reviews.Shown...),
	}
	out.Sealed = append([]byte(nil), s.Sealed...)
	return &out
}
