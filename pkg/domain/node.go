package domain

import "strings"

// Intent is the terminal meaning a choice carries, resolved once when a node is loaded.
type Intent string

const (
	IntentNone    Intent = "NONE"
	IntentPayment Intent = "PAYMENT"
	IntentInquiry Intent = "INQUIRY"
	IntentDefer   Intent = "DEFER"
)

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentNone, IntentPayment, IntentInquiry, IntentDefer:
		return true
	}
	return false
}

// Terminal reports whether selecting a choice with this intent ends the conversation.
func (i Intent) Terminal() bool {
	return i == IntentPayment || i == IntentInquiry
}

// ReviewPopupKey is the choice key recorded for the "show more reviews" affordance.
const ReviewPopupKey = "REVIEW_POPUP"

// Choice is a labelled, optionally-directed edge out of a QuestionNode.
type Choice struct {
	Label      string `json:"label" yaml:"label"`
	NextNodeID string `json:"next_node_id,omitempty" yaml:"next_node_id,omitempty"`
	// Key is A/B for the binary encoding and OPTION_<i> for the N-ary one.
	Key    string `json:"key,omitempty" yaml:"key,omitempty"`
	Intent Intent `json:"intent,omitempty" yaml:"intent,omitempty"`
	// MoreReviews marks the non-advancing "show more reviews" affordance.
	MoreReviews bool `json:"more_reviews,omitempty" yaml:"more_reviews,omitempty"`
}

// HasEdge reports whether the choice points at another node.
func (c Choice) HasEdge() bool {
	return c.NextNodeID != ""
}

// AttachmentType discriminates the Attachment union.
type AttachmentType string

const (
	AttachmentGallery AttachmentType = "destinationGallery"
	AttachmentVideo   AttachmentType = "video"
)

// GalleryItem is one image of a destination gallery.
type GalleryItem struct {
	URL   string `json:"url" mapstructure:"url"`
	Title string `json:"title,omitempty" mapstructure:"title"`
}

// Attachment is rich content bound to a node: a destination gallery or a video embed.
type Attachment struct {
	Type      AttachmentType `json:"type"`
	ID        string         `json:"id,omitempty"`
	Title     string         `json:"title,omitempty"`
	Subtitle  string         `json:"subtitle,omitempty"`
	Items     []GalleryItem  `json:"items,omitempty"`
	EmbedHTML string         `json:"embed_html,omitempty"`
}

// QuestionNode is one prompt of the flow graph.
type QuestionNode struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	AuxiliaryInfo string       `json:"auxiliary_info,omitempty"`
	Choices       []Choice     `json:"choices,omitempty"`
	SequenceIndex *int         `json:"sequence_index,omitempty"`
	Attachments   []Attachment `json:"attachments,omitempty"`
}

// IsTerminal reports whether the node offers no choices.
func (n *QuestionNode) IsTerminal() bool {
	return len(n.Choices) == 0
}

// HasOutgoing reports whether any choice leads somewhere: an edge or a terminal/defer intent.
func (n *QuestionNode) HasOutgoing() bool {
	for _, c := range n.Choices {
		if c.HasEdge() || (c.Intent != "" && c.Intent != IntentNone) {
			return true
		}
	}
	return false
}

// ChoiceByLabel returns the offered choice whose label matches exactly, then ignoring surrounding space.
func (n *QuestionNode) ChoiceByLabel(label string) (Choice, bool) {
	for _, c := range n.Choices {
		if c.Label == label {
			return c, true
		}
	}
	trimmed := strings.TrimSpace(label)
	for _, c := range n.Choices {
		if strings.TrimSpace(c.Label) == trimmed {
			return c, true
		}
	}
	return Choice{}, false
}

// Sequence returns the sequence index and whether it is set.
func (n *QuestionNode) Sequence() (int, bool) {
	if n.SequenceIndex == nil {
		return 0, false
	}
	return *n.SequenceIndex, true
}

// Labels returns the choice labels in order.
func (n *QuestionNode) Labels() []string {
	labels := make([]string, len(n.Choices))
	for i, c := range n.Choices {
		labels[i] = c.Label
	}
	return labels
}

// Clone returns a deep copy of the node.
func (n *QuestionNode) Clone() *QuestionNode {
	if n == nil {
		return nil
	}
	out := *n
	out.Choices = append([]Choice(nil), n.Choices...)
	if n.SequenceIndex != nil {
		idx := *n.SequenceIndex
		out.SequenceIndex = &idx
	}
	if n.Attachments != nil {
		out.Attachments = make([]Attachment, len(n.Attachments))
		for i, a := range n.Attachments {
			a.Items = append([]GalleryItem(nil), a.Items...)
			out.Attachments[i] = a
		}
	}
	return &out
}

// NodeResult is what the content service answers for a node request.
// Node may be nil when the service only returns a terminal redirect.
type NodeResult struct {
	Node        *QuestionNode `json:"node,omitempty"`
	RedirectURL string        `json:"redirect_url,omitempty"`
}

// StartResult is the answer to a start request: the active flow and its first node.
type StartResult struct {
	FlowID string `json:"flow_id"`
	NodeResult
}

// ProductContext scopes a conversation to one product.
type ProductContext struct {
	ProductCode string `json:"product_code"`
	CruiseLine  string `json:"cruise_line,omitempty"`
}

// Code returns the product code, or "" for a nil context.
func (p *ProductContext) Code() string {
	if p == nil {
		return ""
	}
	return p.ProductCode
}

// IntPtr is a small helper for optional integers.
func IntPtr(v int) *int {
	return &v
}
