// Package reviews owns the per-conversation review pool and decides which
// cards are shown at which beat of the conversation.
package reviews

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/aretw0/genie/internal/logging"
	"github.com/aretw0/genie/pkg/domain"
)

// MinInjectionPool is the pool size ensured before a beat injection.
const MinInjectionPool = 3

// FetchLimitFloor is the smallest page requested when the pool grows.
const FetchLimitFloor = 6

// Fetcher loads review cards. The content client implements it.
type Fetcher interface {
	FetchReviews(ctx context.Context, filter domain.ReviewFilter) ([]domain.ReviewCard, error)
}

// Selector caches the reviews of one conversation and tracks which cards and
// which context keys were already shown. It is safe for concurrent use.
type Selector struct {
	fetcher Fetcher
	product *domain.ProductContext
	logger  *slog.Logger

	mu    sync.Mutex
	rng   *rand.Rand
	pool  []domain.ReviewCard
	index map[string]int
	used  map[string]struct{}
	shown map[string]struct{}
}

// Option configures the Selector.
type Option func(*Selector)

// WithRand injects the random source used to sample cards.
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) {
		s.rng = r
	}
}

// WithLogger configures a logger for the Selector.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Selector) {
		s.logger = logger
	}
}

// NewSelector creates an empty selector scoped to product (which may be nil).
func NewSelector(fetcher Fetcher, product *domain.ProductContext, opts ...Option) *Selector {
	s := &Selector{
		fetcher: fetcher,
		product: product,
		logger:  logging.NewNop(),
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		index:   make(map[string]int),
		used:    make(map[string]struct{}),
		shown:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the pool size.
func (s *Selector) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pool)
}

// Pool returns a copy of the cached cards.
func (s *Selector) Pool() []domain.ReviewCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ReviewCard(nil), s.pool...)
}

// Ensure grows the pool to at least want cards when the content service has them.
// The pool never shrinks: fetched cards are merged by id.
func (s *Selector) Ensure(ctx context.Context, want int) ([]domain.ReviewCard, error) {
	if s.Len() >= want {
		return s.Pool(), nil
	}

	filter := domain.ReviewFilter{Limit: max(want, FetchLimitFloor)}
	if s.product != nil {
		filter.ProductCode = s.product.ProductCode
		filter.CruiseLine = s.product.CruiseLine
	}
	cards, err := s.fetcher.FetchReviews(ctx, filter)
	if err != nil {
		s.logger.Warn("Review fetch failed, keeping cached pool", "err", err)
		return s.Pool(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.merge(cards)
	return append([]domain.ReviewCard(nil), s.pool...), nil
}

func (s *Selector) merge(cards []domain.ReviewCard) {
	for _, c := range cards {
		if c.ID == "" {
			continue
		}
		if i, ok := s.index[c.ID]; ok {
			s.pool[i] = c
			continue
		}
		s.index[c.ID] = len(s.pool)
		s.pool = append(s.pool, c)
	}
}

// PickRandom samples up to n cards, preferring ones not shown yet. When fewer
// than n unused cards remain, the used set is cleared and the whole pool is
// sampled. Picked cards are marked used.
func (s *Selector) PickRandom(n int) []domain.ReviewCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pick(n)
}

func (s *Selector) pick(n int) []domain.ReviewCard {
	if n <= 0 || len(s.pool) == 0 {
		return nil
	}

	candidates := make([]domain.ReviewCard, 0, len(s.pool))
	for _, c := range s.pool {
		if _, ok := s.used[c.ID]; !ok {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) < n {
		clear(s.used)
		candidates = append(candidates[:0], s.pool...)
	}

	s.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	picked := candidates[:min(n, len(candidates))]
	for _, c := range picked {
		s.used[c.ID] = struct{}{}
	}
	return append([]domain.ReviewCard(nil), picked...)
}

// Any returns one random pooled card regardless of the used set.
func (s *Selector) Any() (domain.ReviewCard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pool) == 0 {
		return domain.ReviewCard{}, false
	}
	return s.pool[s.rng.IntN(len(s.pool))], true
}

// Shown reports whether key was already injected.
func (s *Selector) Shown(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.shown[key]
	return ok
}

// InjectOnce returns a review message for key unless key was already shown.
// The key is only marked shown when at least one card was picked, so a later
// beat may still succeed after a failed fetch.
func (s *Selector) InjectOnce(ctx context.Context, key, intro string, n int) (domain.Message, bool) {
	if s.Shown(key) {
		return domain.Message{}, false
	}

	if _, err := s.Ensure(ctx, max(n, MinInjectionPool)); err != nil {
		s.logger.Debug("Injection continues with cached pool", "context_key", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shown[key]; ok {
		return domain.Message{}, false
	}
	cards := s.pick(n)
	if len(cards) == 0 {
		return domain.Message{}, false
	}
	s.shown[key] = struct{}{}

	return domain.Message{
		Role:    domain.RoleBot,
		Kind:    domain.KindReview,
		Text:    intro,
		Reviews: cards,
	}, true
}

// Snapshot exports the selector state.
func (s *Selector) Snapshot() domain.ReviewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := domain.ReviewState{Pool: append([]domain.ReviewCard(nil), s.pool...)}
	for id := range s.used {
		st.Used = append(st.Used, id)
	}
	for key := range s.shown {
		st.Shown = append(st.Shown, key)
	}
	return st
}

// Restore replaces the selector state.
func (s *Selector) Restore(st domain.ReviewState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = nil
	s.index = make(map[string]int)
	s.used = make(map[string]struct{})
	s.shown = make(map[string]struct{})
	s.merge(st.Pool)
	for _, id := range st.Used {
		s.used[id] = struct{}{}
	}
	for _, key := range st.Shown {
		s.shown[key] = struct{}{}
	}
}
