package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/ports"
	"github.com/google/uuid"
)

// DefaultUserName fills {userName} when no visitor name is known.
const DefaultUserName = "행복♥"

// Product holds the values substituted into node text for a product code.
type Product struct {
	PackageName  string `yaml:"package_name" json:"package_name"`
	CruiseLine   string `yaml:"cruise_line" json:"cruise_line"`
	ShipName     string `yaml:"ship_name" json:"ship_name"`
	Nights       int    `yaml:"nights" json:"nights"`
	Days         int    `yaml:"days" json:"days"`
	BasePrice    int64  `yaml:"base_price" json:"base_price"`
	StartDate    string `yaml:"start_date" json:"start_date"`
	EndDate      string `yaml:"end_date" json:"end_date"`
	Destinations string `yaml:"destinations" json:"destinations"`
}

func (p Product) replacer(userName string) *strings.Replacer {
	price := "가격 문의"
	if p.BasePrice > 0 {
		price = groupThousands(p.BasePrice)
	}
	return strings.NewReplacer(
		"{userName}", userName,
		"{packageName}", p.PackageName,
		"{cruiseLine}", p.CruiseLine,
		"{shipName}", p.ShipName,
		"{nights}", strconv.Itoa(p.Nights),
		"{days}", strconv.Itoa(p.Days),
		"{basePrice}", price,
		"{startDate}", orDefault(p.StartDate, "일정 문의"),
		"{endDate}", orDefault(p.EndDate, "일정 문의"),
		"{여행지}", p.Destinations,
	)
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// SessionLog is everything recorded for one session.
type SessionLog struct {
	Create    domain.SessionCreate
	Responses []domain.ResponseRecord
	Patches   []domain.SessionPatch
}

// Service implements ports.ContentService over a local node source.
// A node with an edgeless choice carries the final page URL as its redirect,
// which the controller follows when such a choice is picked.
type Service struct {
	source       ports.NodeSource
	flowID       string
	finalPageURL string
	userName     string
	products     map[string]Product
	reviews      []domain.ReviewCard
	sessions     bool

	mu  sync.Mutex
	log map[string]*SessionLog
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithFlowID sets the flow id reported by FetchStart.
func WithFlowID(id string) ServiceOption {
	return func(s *Service) {
		s.flowID = id
	}
}

// WithFinalPageURL sets the redirect of nodes without outgoing edges.
func WithFinalPageURL(url string) ServiceOption {
	return func(s *Service) {
		s.finalPageURL = url
	}
}

// WithUserName sets the {userName} substitution.
func WithUserName(name string) ServiceOption {
	return func(s *Service) {
		s.userName = name
	}
}

// WithProducts registers product placeholders keyed by product code.
func WithProducts(products map[string]Product) ServiceOption {
	return func(s *Service) {
		for code, p := range products {
			s.products[strings.ToUpper(code)] = p
		}
	}
}

// WithReviews sets the review pool.
func WithReviews(cards ...domain.ReviewCard) ServiceOption {
	return func(s *Service) {
		s.reviews = append(s.reviews, cards...)
	}
}

// WithoutSessions makes every session call fail as unavailable.
func WithoutSessions() ServiceOption {
	return func(s *Service) {
		s.sessions = false
	}
}

// NewService creates a service serving the nodes of source.
func NewService(source ports.NodeSource, opts ...ServiceOption) *Service {
	s := &Service{
		source:   source,
		flowID:   "default",
		userName: DefaultUserName,
		products: make(map[string]Product),
		sessions: true,
		log:      make(map[string]*SessionLog),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchStart returns the source's start node. The flowID argument is ignored;
// a service serves exactly one flow.
func (s *Service) FetchStart(ctx context.Context, flowID string, product *domain.ProductContext) (domain.StartResult, error) {
	start := s.source.StartNodeID()
	if start == "" {
		return domain.StartResult{}, fmt.Errorf("flow %s has no start node: %w", s.flowID, domain.ErrNodeNotFound)
	}
	res, err := s.FetchNode(ctx, start, product)
	if err != nil {
		return domain.StartResult{}, err
	}
	return domain.StartResult{FlowID: s.flowID, NodeResult: res}, nil
}

func (s *Service) FetchNode(ctx context.Context, id string, product *domain.ProductContext) (domain.NodeResult, error) {
	node, err := s.source.GetNode(ctx, id)
	if err != nil {
		return domain.NodeResult{}, err
	}

	repl := s.replacer(product)
	node.Text = repl.Replace(node.Text)
	node.AuxiliaryInfo = repl.Replace(node.AuxiliaryInfo)

	res := domain.NodeResult{Node: node}
	if !allEdges(node) {
		res.RedirectURL = s.finalFor(id)
	}
	return res, nil
}

// allEdges reports whether every choice leads to another node.
func allEdges(node *domain.QuestionNode) bool {
	if node.IsTerminal() {
		return false
	}
	for _, c := range node.Choices {
		if !c.HasEdge() {
			return false
		}
	}
	return true
}

func (s *Service) finalFor(id string) string {
	if f, ok := s.source.(interface{ FinalPageURL(string) string }); ok {
		if url := f.FinalPageURL(id); url != "" {
			return url
		}
	}
	return s.finalPageURL
}

func (s *Service) replacer(product *domain.ProductContext) *strings.Replacer {
	p := Product{}
	if product != nil {
		p = s.products[strings.ToUpper(product.ProductCode)]
		if p.CruiseLine == "" {
			p.CruiseLine = product.CruiseLine
		}
	}
	return p.replacer(s.userName)
}

// FetchReviews matches reviews by cruise line. A product-scoped query uses the
// product's registered cruise line when known. Reviews with images come first.
func (s *Service) FetchReviews(ctx context.Context, filter domain.ReviewFilter) ([]domain.ReviewCard, error) {
	line := filter.CruiseLine
	if filter.ProductCode != "" {
		if p, ok := s.products[strings.ToUpper(filter.ProductCode)]; ok && p.CruiseLine != "" {
			line = p.CruiseLine
		}
	}

	var out []domain.ReviewCard
	for _, r := range s.reviews {
		if line == "" || sameCruiseLine(r.CruiseLine, line) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Images) > 0 && len(out[j].Images) == 0
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

var cruiseLineSuffixes = []string{"cruises", "cruise", "크루즈"}

func canonicalCruiseLine(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), ""))
	for _, suffix := range cruiseLineSuffixes {
		s = strings.TrimSuffix(s, suffix)
	}
	return s
}

func sameCruiseLine(a, b string) bool {
	ca, cb := canonicalCruiseLine(a), canonicalCruiseLine(b)
	return ca != "" && ca == cb
}

var errNoSessions = errors.New("sessions are not supported by this content source")

func (s *Service) unavailable(op string) error {
	return &domain.ContentError{Op: op, Kind: domain.ContentUnavailable, Err: errNoSessions}
}

func (s *Service) CreateSession(ctx context.Context, req domain.SessionCreate) (string, error) {
	if !s.sessions {
		return "", s.unavailable("session.create")
	}
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.log[id] = &SessionLog{Create: req}
	return id, nil
}

func (s *Service) AppendResponse(ctx context.Context, rec domain.ResponseRecord) error {
	if !s.sessions {
		return s.unavailable("response")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.log[rec.SessionID]
	if !ok {
		return &domain.ContentError{Op: "response", Kind: domain.ContentNotFound, Err: fmt.Errorf("session %s", rec.SessionID)}
	}
	entry.Responses = append(entry.Responses, rec)
	return nil
}

func (s *Service) PatchSession(ctx context.Context, sessionID string, patch domain.SessionPatch) error {
	if !s.sessions {
		return s.unavailable("session.patch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.log[sessionID]
	if !ok {
		return &domain.ContentError{Op: "session.patch", Kind: domain.ContentNotFound, Err: fmt.Errorf("session %s", sessionID)}
	}
	entry.Patches = append(entry.Patches, patch)
	return nil
}

// Session returns a copy of what was recorded for a session.
func (s *Service) Session(id string) (SessionLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.log[id]
	if !ok {
		return SessionLog{}, false
	}
	return SessionLog{
		Create:    entry.Create,
		Responses: append([]domain.ResponseRecord(nil), entry.Responses...),
		Patches:   append([]domain.SessionPatch(nil), entry.Patches...),
	}, true
}

// Source returns the underlying node source.
func (s *Service) Source() ports.NodeSource {
	return s.source
}
