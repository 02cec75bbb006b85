package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Provider is the closed set of inference backends a process can run with.
type Provider string

const (
	ProviderOpenRouter  Provider = "openrouter"
	ProviderOpenCodeZen Provider = "opencodezen"
	ProviderMistral     Provider = "mistral"
	ProviderAnthropic   Provider = "anthropic"
	ProviderOpenAI      Provider = "openai"
	ProviderOllama      Provider = "ollama"
)

// Providers lists every supported provider.
func Providers() []Provider {
	return []Provider{
		ProviderOpenRouter,
		ProviderOpenCodeZen,
		ProviderMistral,
		ProviderAnthropic,
		ProviderOpenAI,
		ProviderOllama,
	}
}

// ParseProvider maps a configured tag onto a Provider.
func ParseProvider(tag string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(tag)))
	for _, known := range Providers() {
		if p == known {
			return p, nil
		}
	}
	return "", &ConfigurationError{Variable: "INFERENCE_PROVIDER", Reason: fmt.Sprintf("unsupported provider %q", tag)}
}

// CredentialVariable names the environment variable holding the provider's credential.
func (p Provider) CredentialVariable() string {
	switch p {
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	case ProviderOpenCodeZen:
		return "OPENCODE_API_KEY"
	case ProviderMistral:
		return "MISTRAL_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderOllama:
		return "OLLAMA_SERVER_URL"
	default:
		return ""
	}
}

// Models is the model catalog. Preferred and Fallback drive dynamic resolution;
// the remaining fields are the fixed models of providers that skip it.
type Models struct {
	Preferred   map[string]string `toml:"preferred"`
	Fallback    string            `toml:"fallback"`
	OpenCodeZen string            `toml:"opencodezen"`
	Mistral     string            `toml:"mistral"`
	Anthropic   string            `toml:"anthropic"`
	OpenAI      string            `toml:"openai"`
	Ollama      string            `toml:"ollama"`
}

// DefaultModels returns the built-in catalog.
func DefaultModels() Models {
	return Models{
		Preferred: map[string]string{
			string(ProviderOpenRouter): "openrouter/moonshotai/kimi-k2.5",
		},
		Fallback:    "openrouter/arcee-ai/trinity-large-preview:free",
		OpenCodeZen: "zen/kimi-k2.5",
		Mistral:     "mistral/mistral-7b",
		Anthropic:   "claude-sonnet-4-20250514",
		OpenAI:      "gpt-4o-mini",
		Ollama:      "llama3.1:8b",
	}
}

// Config is the relay process configuration. It is resolved once at startup and
// read-only afterwards.
type Config struct {
	BotName         string
	LogLevel        string
	Provider        Provider
	Credential      string
	Models          Models
	MaxHistory      int
	OpenCodeBin     string
	OpenAIBaseURL   string
	InvokeTimeout   time.Duration
	DispatchTimeout time.Duration

	TelegramToken          string
	TelegramAPIBase        string
	TelegramPollTimeout    int
	TelegramSendsPerSecond int
}

// fileConfig is the optional TOML overlay.
type fileConfig struct {
	BotName    string `toml:"bot_name"`
	MaxHistory int    `toml:"max_history"`
	Models     Models `toml:"models"`
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) string

// SecretGetter resolves a parameter by name. *paramstore.Client satisfies it.
type SecretGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Load builds the relay configuration. secrets may be nil; when set together
// with PARAM_PREFIX it is consulted for credentials missing from the environment.
func Load(ctx context.Context, getenv LookupFunc, secrets SecretGetter) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := Config{
		BotName:       envOrDefault(getenv, "BOT_NAME", "Relay Agent"),
		LogLevel:      envOrDefault(getenv, "LOG_LEVEL", "info"),
		Models:        DefaultModels(),
		MaxHistory:    20,
		OpenCodeBin:   envOrDefault(getenv, "OPENCODE_BIN", "opencode"),
		OpenAIBaseURL: envOrDefault(getenv, "OPENAI_BASE_URL", "https://api.openai.com/v1"),
	}

	invokeSeconds, err := envIntOrDefault(getenv, "INVOKE_TIMEOUT_SECONDS", 120, 1)
	if err != nil {
		return Config{}, err
	}
	dispatchSeconds, err := envIntOrDefault(getenv, "DISPATCH_TIMEOUT_SECONDS", 180, 1)
	if err != nil {
		return Config{}, err
	}
	if cfg.TelegramPollTimeout, err = envIntOrDefault(getenv, "TELEGRAM_POLL_TIMEOUT", 30, 0); err != nil {
		return Config{}, err
	}
	if cfg.TelegramSendsPerSecond, err = envIntOrDefault(getenv, "TELEGRAM_SENDS_PER_SECOND", 20, 1); err != nil {
		return Config{}, err
	}
	cfg.InvokeTimeout = time.Duration(invokeSeconds) * time.Second
	cfg.DispatchTimeout = time.Duration(dispatchSeconds) * time.Second

	if path := strings.TrimSpace(getenv("RELAY_CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if v := getenv("MAX_HISTORY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, &ConfigurationError{Variable: "MAX_HISTORY", Reason: fmt.Sprintf("must be a positive integer, got %q", v)}
		}
		cfg.MaxHistory = n
	}

	provider, err := ParseProvider(envOrDefault(getenv, "INFERENCE_PROVIDER", string(ProviderOpenRouter)))
	if err != nil {
		return Config{}, err
	}
	cfg.Provider = provider

	credential, err := resolveCredential(ctx, getenv, secrets, provider)
	if err != nil {
		return Config{}, err
	}
	cfg.Credential = credential

	token := strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN"))
	if token == "" {
		return Config{}, &ConfigurationError{Variable: "TELEGRAM_BOT_TOKEN", Reason: "is required"}
	}
	cfg.TelegramToken = token
	cfg.TelegramAPIBase = envOrDefault(getenv, "TELEGRAM_API_BASE", "https://api.telegram.org") + "/bot" + token

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return &ConfigurationError{Variable: "RELAY_CONFIG_FILE", Reason: fmt.Sprintf("read %s", path), Err: err}
	}
	if fc.BotName != "" {
		cfg.BotName = fc.BotName
	}
	if fc.MaxHistory > 0 {
		cfg.MaxHistory = fc.MaxHistory
	}
	for key, model := range fc.Models.Preferred {
		if strings.TrimSpace(model) != "" {
			cfg.Models.Preferred[key] = model
		}
	}
	overlay(&cfg.Models.Fallback, fc.Models.Fallback)
	overlay(&cfg.Models.OpenCodeZen, fc.Models.OpenCodeZen)
	overlay(&cfg.Models.Mistral, fc.Models.Mistral)
	overlay(&cfg.Models.Anthropic, fc.Models.Anthropic)
	overlay(&cfg.Models.OpenAI, fc.Models.OpenAI)
	overlay(&cfg.Models.Ollama, fc.Models.Ollama)
	return nil
}

func overlay(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// tokenPayload is the JSON shape stored in SSM for credentials.
type tokenPayload struct {
	Token string `json:"token"`
}

func resolveCredential(ctx context.Context, getenv LookupFunc, secrets SecretGetter, p Provider) (string, error) {
	variable := p.CredentialVariable()
	if v := strings.TrimSpace(getenv(variable)); v != "" {
		return v, nil
	}

	prefix := strings.TrimRight(strings.TrimSpace(getenv("PARAM_PREFIX")), "/")
	if secrets == nil || prefix == "" {
		return "", &ConfigurationError{Variable: variable, Reason: fmt.Sprintf("is required when INFERENCE_PROVIDER=%s", p)}
	}

	name := prefix + "/" + string(p) + "-api-key"
	raw, err := secrets.GetParameter(ctx, name)
	if err != nil {
		return "", &ConfigurationError{Variable: variable, Reason: fmt.Sprintf("not set and parameter %s could not be read", name), Err: err}
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", &ConfigurationError{Variable: variable, Reason: fmt.Sprintf("parameter %s is not a JSON token", name), Err: err}
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", &ConfigurationError{Variable: variable, Reason: fmt.Sprintf("parameter %s holds an empty token", name)}
	}
	return strings.TrimSpace(tp.Token), nil
}

func envOrDefault(getenv LookupFunc, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}

// envIntOrDefault reads an integer variable of at least minimum, returning
// fallback when it is unset.
func envIntOrDefault(getenv LookupFunc, key string, fallback, minimum int) (int, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < minimum {
		return 0, &ConfigurationError{Variable: key, Reason: fmt.Sprintf("must be an integer >= %d, got %q", minimum, v)}
	}
	return n, nil
}
