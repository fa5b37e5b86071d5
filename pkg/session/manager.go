package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/genie/internal/logging"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/flow"
	"github.com/aretw0/genie/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a distributed lock is held when its owner dies.
const DefaultLockTTL = 30 * time.Second

// Factory builds conversation controllers. The genie Engine implements it.
type Factory interface {
	NewConversation(id string, product *domain.ProductContext) *flow.Conversation
	Resume(snap *domain.ConversationSnapshot) *flow.Conversation
}

// Observer receives the transcript diff produced by an operation.
type Observer func(ctx context.Context, diff *domain.TranscriptDiff)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates conversation access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	factory Factory
	store   ports.ConversationStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker    ports.DistributedLocker // Optional distributed locker
	lockTTL   time.Duration
	observers []Observer
	logger    *slog.Logger

	bg sync.WaitGroup
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithObserver registers a diff observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observers = append(m.observers, o)
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new conversation Manager.
func NewManager(factory Factory, store ports.ConversationStore, opts ...Option) *Manager {
	m := &Manager{
		factory: factory,
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers an observer after construction.
func (m *Manager) Subscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// Start creates a conversation and shows its first node. An empty id gets a UUID.
// Starting an existing conversation retries a failed start and is otherwise a no-op.
func (m *Manager) Start(ctx context.Context, id string, product *domain.ProductContext) (*domain.ConversationSnapshot, error) {
	if id == "" {
		id = uuid.NewString()
	}
	var snap *domain.ConversationSnapshot
	err := m.tryWithLock(ctx, id, func(ctx context.Context) error {
		old, err := m.store.Load(ctx, id)
		var conv *flow.Conversation
		switch {
		case err == nil:
			conv = m.factory.Resume(old)
		case errors.Is(err, domain.ErrConversationNotFound):
			old = nil
			conv = m.factory.NewConversation(id, product)
		default:
			return fmt.Errorf("failed to check conversation existence: %w", err)
		}

		if err := conv.Start(ctx); err != nil {
			return err
		}
		snap, err = m.commit(ctx, old, conv)
		return err
	})
	return snap, err
}

// Advance applies a selection to a stored conversation.
// A concurrent operation on the same conversation yields domain.ErrBusy.
func (m *Manager) Advance(ctx context.Context, id string, sel flow.Selection) (*domain.ConversationSnapshot, error) {
	var snap *domain.ConversationSnapshot
	err := m.tryWithLock(ctx, id, func(ctx context.Context) error {
		old, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}
		conv := m.factory.Resume(old)
		if err := conv.Advance(ctx, sel); err != nil {
			return err
		}
		snap, err = m.commit(ctx, old, conv)
		return err
	})
	return snap, err
}

// Abandon terminates a conversation on page exit. It waits for an in-flight
// operation instead of failing. Session bookkeeping continues in the background.
func (m *Manager) Abandon(ctx context.Context, id string) (*domain.ConversationSnapshot, error) {
	var snap *domain.ConversationSnapshot
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		old, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}
		conv := m.factory.Resume(old)
		conv.Abandon(ctx)

		m.bg.Add(1)
		go func() {
			defer m.bg.Done()
			conv.Wait()
		}()

		snap, err = m.commit(ctx, old, conv)
		return err
	})
	return snap, err
}

func (m *Manager) commit(ctx context.Context, old *domain.ConversationSnapshot, conv *flow.Conversation) (*domain.ConversationSnapshot, error) {
	snap := conv.Snapshot()
	if err := m.store.Save(ctx, snap.ID, snap); err != nil {
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}
	if diff := domain.Diff(old, snap); diff != nil {
		m.notify(ctx, diff)
	}
	return snap, nil
}

func (m *Manager) notify(ctx context.Context, diff *domain.TranscriptDiff) {
	m.mu.Lock()
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()
	for _, o := range observers {
		o(ctx, diff)
	}
}

// Get returns the stored snapshot.
func (m *Manager) Get(ctx context.Context, id string) (*domain.ConversationSnapshot, error) {
	return m.store.Load(ctx, id)
}

// Delete removes the conversation from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Delete(ctx, id)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying conversation store.
func (m *Manager) Store() ports.ConversationStore {
	return m.store
}

// Wait blocks until background session work of abandoned conversations has finished.
func (m *Manager) Wait() {
	m.bg.Wait()
}

// WithLock executes a function while holding the lock for the conversation.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()
	return m.distributed(ctx, id, fn)
}

// tryWithLock is WithLock that fails with domain.ErrBusy instead of waiting
// for a local operation on the same conversation.
func (m *Manager) tryWithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	if !entry.mu.TryLock() {
		m.release(id)
		return domain.ErrBusy
	}
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()
	return m.distributed(ctx, id, fn)
}

func (m *Manager) distributed(ctx context.Context, id string, fn func(context.Context) error) error {
	if m.locker == nil {
		return fn(ctx)
	}

	unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire distributed lock: %w", err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
				"conversation_id", id,
				"err", err,
			)
		}
	}()

	return fn(ctx)
}
