package content

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/aretw0/genie/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// WireQuestion is the question shape served by the content service.
// Ids may arrive as numbers or strings; both become opaque strings.
type WireQuestion struct {
	ID              string           `mapstructure:"id"`
	QuestionText    string           `mapstructure:"questionText"`
	Information     string           `mapstructure:"information"`
	OptionA         string           `mapstructure:"optionA"`
	OptionB         string           `mapstructure:"optionB"`
	NextQuestionIDA string           `mapstructure:"nextQuestionIdA"`
	NextQuestionIDB string           `mapstructure:"nextQuestionIdB"`
	Options         []string         `mapstructure:"options"`
	NextQuestionIDs []string         `mapstructure:"nextQuestionIds"`
	Intents         []string         `mapstructure:"intents"`
	Order           *int             `mapstructure:"order"`
	FinalPageURL    string           `mapstructure:"finalPageUrl"`
	Attachments     []map[string]any `mapstructure:"attachments"`
}

// WireReview is the review shape served by the content service.
type WireReview struct {
	ID         string `mapstructure:"id"`
	AuthorName string `mapstructure:"authorName"`
	Title      string `mapstructure:"title"`
	Content    string `mapstructure:"content"`
	Images     any    `mapstructure:"images"`
	Rating     int    `mapstructure:"rating"`
	CruiseLine string `mapstructure:"cruiseLine"`
	ShipName   string `mapstructure:"shipName"`
	TravelDate string `mapstructure:"travelDate"`
}

type wireGallery struct {
	ID       string               `mapstructure:"id"`
	Title    string               `mapstructure:"title"`
	Subtitle string               `mapstructure:"subtitle"`
	Items    []domain.GalleryItem `mapstructure:"items"`
}

type wireVideo struct {
	Title     string `mapstructure:"title"`
	EmbedHTML string `mapstructure:"embedHtml"`
}

func weakDecode(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// DecodeQuestion converts an untyped wire payload into a QuestionNode, normalizing
// both choice encodings. It also returns the node's own final page URL, if any.
func DecodeQuestion(raw map[string]any) (*domain.QuestionNode, string, error) {
	var w WireQuestion
	if err := weakDecode(raw, &w); err != nil {
		return nil, "", fmt.Errorf("decode question: %w", err)
	}
	if w.ID == "" {
		return nil, "", fmt.Errorf("decode question: missing id")
	}
	node, err := w.Node()
	return node, w.FinalPageURL, err
}

// Node normalizes the wire question. The N-ary encoding wins over the binary one;
// a lone optionA yields a single choice. Empty or zero next ids mean no edge.
func (w WireQuestion) Node() (*domain.QuestionNode, error) {
	node := &domain.QuestionNode{
		ID:            w.ID,
		Text:          w.QuestionText,
		AuxiliaryInfo: w.Information,
		SequenceIndex: w.Order,
	}

	switch {
	case len(w.Options) > 0:
		for i, label := range w.Options {
			next := ""
			if i < len(w.NextQuestionIDs) {
				next = edge(w.NextQuestionIDs[i])
			}
			node.Choices = append(node.Choices, domain.Choice{
				Label:      label,
				NextNodeID: next,
				Key:        "OPTION_" + strconv.Itoa(i),
			})
		}
	case w.OptionA != "":
		node.Choices = append(node.Choices, domain.Choice{Label: w.OptionA, NextNodeID: edge(w.NextQuestionIDA), Key: "A"})
		if w.OptionB != "" {
			node.Choices = append(node.Choices, domain.Choice{Label: w.OptionB, NextNodeID: edge(w.NextQuestionIDB), Key: "B"})
		}
	}

	for i, tag := range w.Intents {
		if i >= len(node.Choices) || tag == "" {
			continue
		}
		intent := domain.Intent(strings.ToUpper(tag))
		if !intent.Valid() {
			return nil, fmt.Errorf("question %s: unknown intent %q", w.ID, tag)
		}
		node.Choices[i].Intent = intent
	}

	for _, raw := range w.Attachments {
		att, ok, err := DecodeAttachment(raw)
		if err != nil {
			return nil, fmt.Errorf("question %s: %w", w.ID, err)
		}
		if ok {
			node.Attachments = append(node.Attachments, att)
		}
	}
	return node, nil
}

func edge(id string) string {
	id = strings.TrimSpace(id)
	if id == "0" {
		return ""
	}
	return id
}

// DecodeAttachment decodes one member of the attachment union.
// Unknown types report ok=false without error.
func DecodeAttachment(raw map[string]any) (domain.Attachment, bool, error) {
	kind, _ := raw["type"].(string)
	switch domain.AttachmentType(kind) {
	case domain.AttachmentGallery:
		var g wireGallery
		if err := weakDecode(raw, &g); err != nil {
			return domain.Attachment{}, false, fmt.Errorf("decode gallery: %w", err)
		}
		return domain.Attachment{
			Type:     domain.AttachmentGallery,
			ID:       g.ID,
			Title:    g.Title,
			Subtitle: g.Subtitle,
			Items:    g.Items,
		}, true, nil
	case domain.AttachmentVideo:
		var v wireVideo
		if err := weakDecode(raw, &v); err != nil {
			return domain.Attachment{}, false, fmt.Errorf("decode video: %w", err)
		}
		return domain.Attachment{Type: domain.AttachmentVideo, Title: v.Title, EmbedHTML: v.EmbedHTML}, true, nil
	}
	return domain.Attachment{}, false, nil
}

// DecodeReview converts an untyped wire review into a ReviewCard.
func DecodeReview(raw map[string]any) (domain.ReviewCard, error) {
	var w WireReview
	if err := weakDecode(raw, &w); err != nil {
		return domain.ReviewCard{}, fmt.Errorf("decode review: %w", err)
	}
	if w.ID == "" {
		return domain.ReviewCard{}, fmt.Errorf("decode review: missing id")
	}
	return domain.ReviewCard{
		ID:         w.ID,
		Author:     w.AuthorName,
		Rating:     domain.ClampRating(w.Rating),
		Title:      w.Title,
		Body:       w.Content,
		Images:     NormalizeImages(w.Images),
		CruiseLine: w.CruiseLine,
		ShipName:   w.ShipName,
		TravelDate: w.TravelDate,
	}, nil
}

// NormalizeImages accepts a list, a JSON-encoded list, or a single path,
// and returns the image URLs with path segments escaped.
func NormalizeImages(v any) []string {
	var raw []string
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		raw = t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		s := strings.TrimSpace(t)
		switch {
		case strings.HasPrefix(s, "["):
			if err := json.Unmarshal([]byte(s), &raw); err != nil {
				return nil
			}
		case strings.HasPrefix(s, "/") || strings.HasPrefix(s, "http"):
			raw = []string{s}
		}
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, escapeImagePath(s))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func escapeImagePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		return p
	}
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, seg := range segments {
		if unescaped, err := url.PathUnescape(seg); err == nil {
			seg = unescaped
		}
		segments[i] = url.PathEscape(seg)
	}
	return "/" + strings.Join(segments, "/")
}
