package domain

import (
	"strings"
	"time"
)

// LocalSessionPrefix marks ids minted when the content service could not create a session.
const LocalSessionPrefix = "local-"

// SessionID identifies a conversation session. A local id was never registered
// remotely and is never synchronized.
type SessionID struct {
	Value string `json:"value"`
	Local bool   `json:"local,omitempty"`
}

// RemoteSession wraps an id issued by the content service.
func RemoteSession(id string) SessionID {
	return SessionID{Value: id}
}

// LocalSession wraps a locally minted id, adding the local prefix when missing.
func LocalSession(id string) SessionID {
	if !strings.HasPrefix(id, LocalSessionPrefix) {
		id = LocalSessionPrefix + id
	}
	return SessionID{Value: id, Local: true}
}

// IsLocal reports whether the session only exists in this process.
func (s SessionID) IsLocal() bool {
	return s.Local
}

// IsZero reports whether no session has begun.
func (s SessionID) IsZero() bool {
	return s.Value == ""
}

func (s SessionID) String() string {
	return s.Value
}

// SessionStatus is the lifecycle status synchronized to the content service.
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionAbandoned SessionStatus = "ABANDONED"
)

// PaymentPending is recorded when a conversation completes through the payment intent.
const PaymentPending = "PENDING"

// ConversationSession is the tracker's view of one analytics session.
type ConversationSession struct {
	ID        SessionID       `json:"id"`
	FlowID    string          `json:"flow_id"`
	Product   *ProductContext `json:"product,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Status    SessionStatus   `json:"status"`
}

// Finalized reports whether the session left ACTIVE.
func (s *ConversationSession) Finalized() bool {
	return s.Status != "" && s.Status != SessionActive
}

// SessionCreate is the payload for registering a new remote session.
type SessionCreate struct {
	FlowID      string    `json:"flowId"`
	ProductCode string    `json:"productCode,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
}

// ResponseRecord is one append-only answer record.
type ResponseRecord struct {
	SessionID         string    `json:"sessionId"`
	QuestionID        string    `json:"questionId"`
	SelectedChoiceKey *string   `json:"selectedOption"`
	SelectedLabel     string    `json:"selectedText"`
	ResponseTimeMs    int64     `json:"responseTime"`
	DisplayedAt       time.Time `json:"displayedAt"`
	AnsweredAt        time.Time `json:"answeredAt"`
	NextNodeID        *string   `json:"nextQuestionId"`
	SequenceIndex     *int      `json:"questionOrder"`
	IsAbandoned       bool      `json:"isAbandoned"`
}

// SessionPatch is a partial update of a remote session.
type SessionPatch struct {
	Status             SessionStatus `json:"finalStatus,omitempty"`
	IsCompleted        bool          `json:"isCompleted,omitempty"`
	EndedAt            *time.Time    `json:"endedAt,omitempty"`
	DurationMs         int64         `json:"durationMs,omitempty"`
	FinalPageURL       string        `json:"finalPageUrl,omitempty"`
	ConversionRate     *float64      `json:"conversionRate,omitempty"`
	PaymentStatus      string        `json:"paymentStatus,omitempty"`
	PaymentAttemptedAt *time.Time    `json:"paymentAttemptedAt,omitempty"`
}

// StringPtr returns nil for "" and a pointer otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
