package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/genie"
	"github.com/aretw0/genie/pkg/adapters/contentapi"
	"github.com/aretw0/genie/pkg/adapters/file"
	"github.com/aretw0/genie/pkg/adapters/memory"
	"github.com/aretw0/genie/pkg/adapters/redis"
	"github.com/aretw0/genie/pkg/domain"
	"github.com/aretw0/genie/pkg/persistence/middleware"
	"github.com/aretw0/genie/pkg/ports"
	"github.com/aretw0/genie/pkg/session"
)

// newEngine builds the engine from the loaded configuration. The remote content
// API wins over a local flow.
func newEngine(hooks domain.LifecycleHooks) (*genie.Engine, error) {
	opts := append(cfg.EngineOptions(logger), genie.WithLifecycleHooks(hooks))

	if cfg.ContentURL != "" {
		// Per-call bounds live in the content client; the transport cap is a backstop.
		hc := &http.Client{Timeout: cfg.Timeouts.Longest() + time.Second}
		client := contentapi.New(cfg.ContentURL,
			contentapi.WithHTTPClient(hc),
			contentapi.WithLogger(logger),
		)
		opts = append(opts, genie.WithContentService(client))
		return genie.New("", opts...)
	}
	if cfg.Flow == "" {
		return nil, errors.New("no content source: set --flow or --content-url")
	}
	eng, err := genie.New(cfg.Flow, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genie: %w", err)
	}
	return eng, nil
}

// newStore returns the conversation store and the session options that go with it.
// Redis wins over a store directory; with neither, conversations stay in process
// memory. Configured PII masking and encryption wrap whichever store is chosen.
func newStore() (ports.ConversationStore, []session.Option, func() error, error) {
	mws, err := cfg.StoreMiddleware()
	if err != nil {
		return nil, nil, nil, err
	}
	noop := func() error { return nil }

	switch {
	case cfg.Redis.Addr != "":
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithTTL(cfg.Redis.TTL),
			redis.WithPrefix(cfg.Redis.Prefix),
		)
		opts := []session.Option{
			session.WithLocker(redis.NewLocker(store.Client(), cfg.Redis.Prefix)),
			session.WithLockTTL(cfg.Redis.LockTTL),
		}
		logger.Info("Using Redis conversation store", "address", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
		return middleware.Chain(store, mws...), opts, store.Close, nil
	case cfg.Store.Dir != "":
		logger.Info("Using file conversation store", "dir", cfg.Store.Dir)
		return middleware.Chain(file.New(cfg.Store.Dir), mws...), nil, noop, nil
	default:
		return middleware.Chain(memory.NewStore(), mws...), nil, noop, nil
	}
}

func parseProduct(code, line string) *domain.ProductContext {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	return &domain.ProductContext{ProductCode: code, CruiseLine: strings.TrimSpace(line)}
}
