package loam

// Metadata is the frontmatter of a flow document. Question documents carry the
// wire fields of a question and use the body as question text; documents under
// reviews/ carry the wire fields of a review and use the body as review content.
// Loosely typed fields accept numbers or strings.
type Metadata struct {
	ID string `json:"id" mapstructure:"id"`

	// Question fields
	Information     string `json:"information" mapstructure:"information"`
	OptionA         string `json:"optionA" mapstructure:"optionA"`
	OptionB         string `json:"optionB" mapstructure:"optionB"`
	NextQuestionIDA any    `json:"nextQuestionIdA" mapstructure:"nextQuestionIdA"`
	NextQuestionIDB any    `json:"nextQuestionIdB" mapstructure:"nextQuestionIdB"`
	Options         []any  `json:"options" mapstructure:"options"`
	NextQuestionIDs []any  `json:"nextQuestionIds" mapstructure:"nextQuestionIds"`
	Intents         []any  `json:"intents" mapstructure:"intents"`
	Order           any    `json:"order" mapstructure:"order"`
	FinalPageURL    string `json:"finalPageUrl" mapstructure:"finalPageUrl"`
	Attachments     []any  `json:"attachments" mapstructure:"attachments"`

	// Review fields
	AuthorName string `json:"authorName" mapstructure:"authorName"`
	Title      string `json:"title" mapstructure:"title"`
	Rating     any    `json:"rating" mapstructure:"rating"`
	Images     any    `json:"images" mapstructure:"images"`
	CruiseLine string `json:"cruiseLine" mapstructure:"cruiseLine"`
	ShipName   string `json:"shipName" mapstructure:"shipName"`
	TravelDate string `json:"travelDate" mapstructure:"travelDate"`
}

func (m Metadata) question(id, body string) map[string]any {
	raw := map[string]any{
		"id":              id,
		"questionText":    body,
		"information":     m.Information,
		"optionA":         m.OptionA,
		"optionB":         m.OptionB,
		"nextQuestionIdA": m.NextQuestionIDA,
		"nextQuestionIdB": m.NextQuestionIDB,
		"options":         m.Options,
		"nextQuestionIds": m.NextQuestionIDs,
		"intents":         m.Intents,
		"finalPageUrl":    m.FinalPageURL,
	}
	if m.Order != nil {
		raw["order"] = m.Order
	}
	if len(m.Attachments) > 0 {
		raw["attachments"] = m.Attachments
	}
	return raw
}

func (m Metadata) review(id, body string) map[string]any {
	return map[string]any{
		"id":         id,
		"authorName": m.AuthorName,
		"title":      m.Title,
		"content":    body,
		"rating":     m.Rating,
		"images":     m.Images,
		"cruiseLine": m.CruiseLine,
		"shipName":   m.ShipName,
		"travelDate": m.TravelDate,
	}
}
