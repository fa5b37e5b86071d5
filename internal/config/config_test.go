package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/genie/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genie.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 15*time.Second, cfg.Timeouts.Node)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Reviews)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Patch)
	assert.Equal(t, "intro", cfg.Conversation.IntroKey)
	assert.Equal(t, 3, cfg.Conversation.ReviewNodes[5])
	assert.Equal(t, 6, cfg.Conversation.ReviewNodes[11])
	assert.Equal(t, domain.IntentPayment, cfg.Intents.Classify("바로 결제하기"))
	assert.Empty(t, cfg.Redis.Addr, "conversations stay in memory by default")
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
flow: ./flows/alaska.yaml
log:
  level: debug
  format: json
server:
  addr: ":9090"
redis:
  addr: localhost:6379
  ttl: 2h
timeouts:
  node: 3s
conversation:
  more_reviews_count: 4
  redirects:
    payment: /checkout/{productCode}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./flows/alaska.yaml", cfg.Flow)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Node)
	assert.Equal(t, 4, cfg.Conversation.MoreReviewsCount)
	assert.Equal(t, "/checkout/{productCode}", cfg.Conversation.Redirects.Payment)

	// Untouched keys keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Reviews)
	assert.Equal(t, "genie:conversation:", cfg.Redis.Prefix)
	assert.Equal(t, "/products/{productCode}/inquiry", cfg.Conversation.Redirects.Inquiry)
	assert.True(t, cfg.Server.Metrics)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9090\"\n")
	t.Setenv("GENIE_ADDR", ":7070")
	t.Setenv("GENIE_CONTENT_URL", "https://content.example/api")
	t.Setenv("GENIE_REDIS_DB", "3")
	t.Setenv("GENIE_REDIS_TTL", "15m")
	t.Setenv("GENIE_METRICS", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "https://content.example/api", cfg.ContentURL)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 15*time.Minute, cfg.Redis.TTL)
	assert.False(t, cfg.Server.Metrics)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("Missing File", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("Bad YAML", func(t *testing.T) {
		_, err := Load(writeConfig(t, "log: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("Bad Duration", func(t *testing.T) {
		_, err := Load(writeConfig(t, "timeouts:\n  node: soon\n"))
		assert.Error(t, err)
	})

	t.Run("Bad Env Number", func(t *testing.T) {
		t.Setenv("GENIE_REDIS_DB", "three")
		_, err := Load("")
		assert.ErrorContains(t, err, "GENIE_REDIS_DB")
	})

	t.Run("Bad Level", func(t *testing.T) {
		t.Setenv("GENIE_LOG_LEVEL", "loud")
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("Inverted Beat", func(t *testing.T) {
		_, err := Load(writeConfig(t, "conversation:\n  beats:\n    - {name: x, from: 9, to: 4}\n"))
		assert.ErrorContains(t, err, "beat")
	})

	t.Run("Short Encryption Key", func(t *testing.T) {
		t.Setenv("GENIE_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString([]byte("short")))
		_, err := Load("")
		assert.ErrorContains(t, err, "32 bytes")
	})
}

func TestStoreMiddleware(t *testing.T) {
	cfg := Default()
	mws, err := cfg.StoreMiddleware()
	require.NoError(t, err)
	assert.Empty(t, mws)

	cfg.Security.MaskPII = true
	cfg.Security.EncryptionKey = base64.StdEncoding.EncodeToString(make([]byte, 32))
	mws, err = cfg.StoreMiddleware()
	require.NoError(t, err)
	assert.Len(t, mws, 2)

	cfg.Security.PIIPatterns = []string{"("}
	_, err = cfg.StoreMiddleware()
	assert.Error(t, err)
}

func TestLoad_MaxInputSize(t *testing.T) {
	cfg, err := Load(writeConfig(t, "input:\n  max_size: 256\n"))
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Input.MaxSize)

	t.Setenv("GENIE_MAX_INPUT_SIZE", "64")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Input.MaxSize)

	t.Setenv("GENIE_MAX_INPUT_SIZE", "0")
	_, err = Load("")
	assert.ErrorContains(t, err, "max_size")
}

func TestLoad_StoreEnv(t *testing.T) {
	t.Setenv("GENIE_STORE_DIR", "/var/lib/genie")
	t.Setenv("GENIE_MASK_PII", "true")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/genie", cfg.Store.Dir)
	assert.True(t, cfg.Security.MaskPII)
}

func TestEngineOptions(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.EngineOptions(cfg.Logger()), 4)
}
