package domain

// TranscriptDiff represents the changes between two snapshots of a conversation.
// It is designed to be serialized to JSON for partial updates on the client.
type TranscriptDiff struct {
	// ConversationID is always present to identify the target.
	ConversationID string `json:"conversation_id"`

	State         *FlowState `json:"state,omitempty"`
	CurrentNodeID *string    `json:"current_node_id,omitempty"`

	// Appended contains the transcript entries added since the old snapshot.
	Appended []Message `json:"appended,omitempty"`

	RedirectURL *string `json:"redirect_url,omitempty"`
}

// Diff calculates the difference between oldSnap and newSnap.
// If oldSnap is nil, it returns a diff representing the entire newSnap (initial load).
// It returns nil when nothing changed.
func Diff(oldSnap, newSnap *ConversationSnapshot) *TranscriptDiff {
	if newSnap == nil {
		return nil
	}

	diff := &TranscriptDiff{ConversationID: newSnap.ID}

	if oldSnap == nil || oldSnap.State != newSnap.State {
		diff.State = &newSnap.State
	}
	newNode := nodeID(newSnap)
	if oldSnap == nil || nodeID(oldSnap) != newNode {
		if newNode != "" || oldSnap != nil {
			diff.CurrentNodeID = &newNode
		}
	}
	if newSnap.RedirectURL != "" && (oldSnap == nil || oldSnap.RedirectURL != newSnap.RedirectURL) {
		diff.RedirectURL = &newSnap.RedirectURL
	}
	diff.Appended = diffTranscript(oldSnap, newSnap)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func nodeID(s *ConversationSnapshot) string {
	if s.CurrentNode == nil {
		return ""
	}
	return s.CurrentNode.ID
}

// diffTranscript assumes the transcript is append-only.
func diffTranscript(old, new *ConversationSnapshot) []Message {
	if len(new.Transcript) == 0 {
		return nil
	}
	if old == nil {
		return new.Transcript
	}
	if len(new.Transcript) > len(old.Transcript) {
		return new.Transcript[len(old.Transcript):]
	}
	return nil
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *TranscriptDiff) IsEmpty() bool {
	return d.State == nil &&
		d.CurrentNodeID == nil &&
		d.RedirectURL == nil &&
		len(d.Appended) == 0
}
