// Package providers resolves declarative provider configuration into
// constructed backends.
package providers

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/deepfocus-app/agentcore"
	"github.com/deepfocus-app/agentcore/anthropic"
	"github.com/deepfocus-app/agentcore/gemini"
	"github.com/deepfocus-app/agentcore/local"
	"github.com/deepfocus-app/agentcore/openaicompat"
)

// Kind tags the provider configuration union.
type Kind string

const (
	KindLocal     Kind = "local"
	KindOpenAI    Kind = "openai"
	KindGroq      Kind = "groq"
	KindAnthropic Kind = "anthropic"
	KindGemini    Kind = "gemini"
)

// Config is the tagged provider configuration. Model is required for every
// kind; APIKey for the cloud kinds; BaseURL and Org are optional overrides.
type Config struct {
	Kind    Kind
	Model   string
	APIKey  string
	BaseURL string
	Org     string
}

// New constructs the provider a config describes. The local kind needs the
// in-process inference engine; cloud kinds ignore it.
func New(cfg Config, engine local.Engine) (agentcore.Provider, error) {
	switch cfg.Kind {
	case KindLocal:
		return local.New(local.Config{Model: cfg.Model}, engine)
	case KindOpenAI:
		if cfg.APIKey == "" {
			return nil, missingKey(cfg.Kind)
		}
		return openaicompat.New(openaicompat.Config{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL, Org: cfg.Org,
		}), nil
	case KindGroq:
		if cfg.APIKey == "" {
			return nil, missingKey(cfg.Kind)
		}
		return openaicompat.NewGroq(openaicompat.Config{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL,
		}), nil
	case KindAnthropic:
		if cfg.APIKey == "" {
			return nil, missingKey(cfg.Kind)
		}
		return anthropic.New(anthropic.Config{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL,
		}), nil
	case KindGemini:
		if cfg.APIKey == "" {
			return nil, missingKey(cfg.Kind)
		}
		return gemini.New(gemini.Config{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL,
		}), nil
	default:
		return nil, &agentcore.Error{
			Code:    agentcore.CodeConfig,
			Message: "unknown provider kind " + string(cfg.Kind),
		}
	}
}

func missingKey(kind Kind) error {
	return &agentcore.Error{
		Provider: string(kind),
		Code:     agentcore.CodeConfig,
		Message:  "API key is required",
	}
}

// Env variable names per cloud kind.
var envKeys = map[Kind]string{
	KindOpenAI:    "OPENAI_API_KEY",
	KindGroq:      "GROQ_API_KEY",
	KindAnthropic: "ANTHROPIC_API_KEY",
	KindGemini:    "GEMINI_API_KEY",
}

// FromEnv fills in cfg.APIKey from the environment, loading a .env file
// first when present. Values already set on cfg win over the environment.
func FromEnv(cfg Config) (Config, error) {
	// Missing .env is fine; env vars may be set directly.
	_ = godotenv.Load()

	if cfg.APIKey == "" {
		if key, ok := envKeys[cfg.Kind]; ok {
			cfg.APIKey = os.Getenv(key)
		}
	}
	return cfg, nil
}

// CheckAll health-checks every provider concurrently through the cache and
// returns the first failure, if any.
func CheckAll(ctx context.Context, cache *agentcore.HealthCache, provs ...agentcore.Provider) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range provs {
		p := p
		g.Go(func() error {
			return cache.Check(ctx, p)
		})
	}
	return g.Wait()
}
