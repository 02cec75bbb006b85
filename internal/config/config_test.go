package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envMap(vals map[string]string) LookupFunc {
	return func(key string) string { return vals[key] }
}

type fakeSecrets struct {
	vals  map[string]string
	err   error
	names []string
}

func (f *fakeSecrets) GetParameter(_ context.Context, name string) (string, error) {
	f.names = append(f.names, name)
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.vals[name]
	if !ok {
		return "", errors.New("parameter not found")
	}
	return v, nil
}

func baseEnv() map[string]string {
	return map[string]string{
		"TELEGRAM_BOT_TOKEN": "tg-token",
		"OPENROUTER_API_KEY": "or-key",
	}
}

func expectConfigError(t *testing.T, err error, variable string) {
	t.Helper()
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, variable, cfgErr.Variable)
	require.Contains(t, err.Error(), variable)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(context.Background(), envMap(baseEnv()), nil)
	require.NoError(t, err)
	require.Equal(t, ProviderOpenRouter, cfg.Provider)
	require.Equal(t, "or-key", cfg.Credential)
	require.Equal(t, 20, cfg.MaxHistory)
	require.Equal(t, "opencode", cfg.OpenCodeBin)
	require.Equal(t, 120*time.Second, cfg.InvokeTimeout)
	require.Equal(t, 180*time.Second, cfg.DispatchTimeout)
	require.Equal(t, "https://api.telegram.org/bottg-token", cfg.TelegramAPIBase)
	require.Equal(t, "openrouter/moonshotai/kimi-k2.5", cfg.Models.Preferred["openrouter"])
	require.Equal(t, "openrouter/arcee-ai/trinity-large-preview:free", cfg.Models.Fallback)
}

func TestLoad_MissingCredentialNamesVariable(t *testing.T) {
	cases := map[Provider]string{
		ProviderOpenRouter:  "OPENROUTER_API_KEY",
		ProviderOpenCodeZen: "OPENCODE_API_KEY",
		ProviderMistral:     "MISTRAL_API_KEY",
		ProviderAnthropic:   "ANTHROPIC_API_KEY",
		ProviderOpenAI:      "OPENAI_API_KEY",
		ProviderOllama:      "OLLAMA_SERVER_URL",
	}
	for provider, variable := range cases {
		t.Run(string(provider), func(t *testing.T) {
			env := map[string]string{
				"TELEGRAM_BOT_TOKEN": "tg-token",
				"INFERENCE_PROVIDER": string(provider),
			}
			_, err := Load(context.Background(), envMap(env), nil)
			expectConfigError(t, err, variable)

			env[variable] = "present"
			cfg, err := Load(context.Background(), envMap(env), nil)
			require.NoError(t, err)
			require.Equal(t, provider, cfg.Provider)
			require.Equal(t, "present", cfg.Credential)
		})
	}
}

func TestLoad_UnknownProvider(t *testing.T) {
	env := baseEnv()
	env["INFERENCE_PROVIDER"] = "carrier-pigeon"
	_, err := Load(context.Background(), envMap(env), nil)
	expectConfigError(t, err, "INFERENCE_PROVIDER")
}

func TestLoad_ProviderTagIsCaseInsensitive(t *testing.T) {
	env := baseEnv()
	env["INFERENCE_PROVIDER"] = " Anthropic "
	env["ANTHROPIC_API_KEY"] = "sk-ant"
	cfg, err := Load(context.Background(), envMap(env), nil)
	require.NoError(t, err)
	require.Equal(t, ProviderAnthropic, cfg.Provider)
}

func TestLoad_MissingTelegramToken(t *testing.T) {
	env := baseEnv()
	delete(env, "TELEGRAM_BOT_TOKEN")
	_, err := Load(context.Background(), envMap(env), nil)
	expectConfigError(t, err, "TELEGRAM_BOT_TOKEN")
}

func TestLoad_MaxHistory(t *testing.T) {
	env := baseEnv()
	env["MAX_HISTORY"] = "2"
	cfg, err := Load(context.Background(), envMap(env), nil)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.MaxHistory)

	for _, bad := range []string{"0", "-1", "many"} {
		env["MAX_HISTORY"] = bad
		_, err = Load(context.Background(), envMap(env), nil)
		expectConfigError(t, err, "MAX_HISTORY")
	}
}

func TestLoad_IntegerVariables(t *testing.T) {
	env := baseEnv()
	env["INVOKE_TIMEOUT_SECONDS"] = "30"
	env["DISPATCH_TIMEOUT_SECONDS"] = "60"
	env["TELEGRAM_POLL_TIMEOUT"] = "0"
	env["TELEGRAM_SENDS_PER_SECOND"] = "5"
	cfg, err := Load(context.Background(), envMap(env), nil)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.InvokeTimeout)
	require.Equal(t, time.Minute, cfg.DispatchTimeout)
	require.Equal(t, 0, cfg.TelegramPollTimeout)
	require.Equal(t, 5, cfg.TelegramSendsPerSecond)

	cases := map[string][]string{
		"INVOKE_TIMEOUT_SECONDS":    {"soon", "0"},
		"DISPATCH_TIMEOUT_SECONDS":  {"3m", "-1"},
		"TELEGRAM_POLL_TIMEOUT":     {"long", "-5"},
		"TELEGRAM_SENDS_PER_SECOND": {"1.5", "0"},
	}
	for variable, values := range cases {
		for _, bad := range values {
			env := baseEnv()
			env[variable] = bad
			_, err := Load(context.Background(), envMap(env), nil)
			expectConfigError(t, err, variable)
		}
	}
}

func TestLoad_CredentialFromParamStore(t *testing.T) {
	env := baseEnv()
	delete(env, "OPENROUTER_API_KEY")
	env["PARAM_PREFIX"] = "/relay/"
	secrets := &fakeSecrets{vals: map[string]string{"/relay/openrouter-api-key": `{"token":"from-ssm"}`}}

	cfg, err := Load(context.Background(), envMap(env), secrets)
	require.NoError(t, err)
	require.Equal(t, "from-ssm", cfg.Credential)
	require.Equal(t, []string{"/relay/openrouter-api-key"}, secrets.names)
}

func TestLoad_EnvCredentialSkipsParamStore(t *testing.T) {
	env := baseEnv()
	env["PARAM_PREFIX"] = "/relay"
	secrets := &fakeSecrets{}

	_, err := Load(context.Background(), envMap(env), secrets)
	require.NoError(t, err)
	require.Empty(t, secrets.names)
}

func TestLoad_ParamStoreFailures(t *testing.T) {
	env := baseEnv()
	delete(env, "OPENROUTER_API_KEY")
	env["PARAM_PREFIX"] = "/relay"

	_, err := Load(context.Background(), envMap(env), &fakeSecrets{err: errors.New("ssm unavailable")})
	expectConfigError(t, err, "OPENROUTER_API_KEY")
	require.ErrorContains(t, err, "ssm unavailable")

	_, err = Load(context.Background(), envMap(env), &fakeSecrets{vals: map[string]string{"/relay/openrouter-api-key": `{"broken`}})
	expectConfigError(t, err, "OPENROUTER_API_KEY")

	_, err = Load(context.Background(), envMap(env), &fakeSecrets{vals: map[string]string{"/relay/openrouter-api-key": `{"token":""}`}})
	expectConfigError(t, err, "OPENROUTER_API_KEY")
	require.ErrorContains(t, err, "empty token")
}

func TestLoad_FileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
bot_name = "Desk Bot"
max_history = 8

[models]
fallback = "openrouter/other:free"
anthropic = "claude-3-5-haiku-latest"

[models.preferred]
openrouter = "openrouter/custom"
opencodezen = "zen/custom"
`), 0o600))

	env := baseEnv()
	env["RELAY_CONFIG_FILE"] = path
	cfg, err := Load(context.Background(), envMap(env), nil)
	require.NoError(t, err)
	require.Equal(t, "Desk Bot", cfg.BotName)
	require.Equal(t, 8, cfg.MaxHistory)
	require.Equal(t, "openrouter/other:free", cfg.Models.Fallback)
	require.Equal(t, "claude-3-5-haiku-latest", cfg.Models.Anthropic)
	require.Equal(t, "openrouter/custom", cfg.Models.Preferred["openrouter"])
	require.Equal(t, "zen/custom", cfg.Models.Preferred["opencodezen"])
	require.Equal(t, "mistral/mistral-7b", cfg.Models.Mistral)

	env["MAX_HISTORY"] = "3"
	cfg, err = Load(context.Background(), envMap(env), nil)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.MaxHistory, "environment wins over the file")
}

func TestLoad_FileMissing(t *testing.T) {
	env := baseEnv()
	env["RELAY_CONFIG_FILE"] = filepath.Join(t.TempDir(), "absent.toml")
	_, err := Load(context.Background(), envMap(env), nil)
	expectConfigError(t, err, "RELAY_CONFIG_FILE")
}

func TestParseProvider_AllKnown(t *testing.T) {
	for _, p := range Providers() {
		got, err := ParseProvider(string(p))
		require.NoError(t, err)
		require.Equal(t, p, got)
		require.NotEmpty(t, p.CredentialVariable())
	}
	require.Empty(t, Provider("nope").CredentialVariable())
}

func TestConfigurationError_NilSafe(t *testing.T) {
	var e *ConfigurationError
	require.Equal(t, "", e.Error())
	require.Nil(t, e.Unwrap())
}

func TestLoadAPI(t *testing.T) {
	cfg, err := LoadAPI(context.Background(), envMap(map[string]string{
		"USERS_TABLE": "users",
		"JWT_SECRET":  "s3cret",
	}), nil)
	require.NoError(t, err)
	require.Equal(t, UserStoreDynamoDB, cfg.UserStore)
	require.Equal(t, "users", cfg.UsersTable)
	require.Equal(t, "s3cret", cfg.JWTSecret)

	cfg, err = LoadAPI(context.Background(), envMap(map[string]string{
		"USER_STORE":   "sqlite",
		"PARAM_PREFIX": "/relay",
	}), &fakeSecrets{vals: map[string]string{"/relay/jwt-secret": "from-ssm"}})
	require.NoError(t, err)
	require.Equal(t, UserStoreSQLite, cfg.UserStore)
	require.Equal(t, "users.db", cfg.SQLitePath)
	require.Equal(t, "from-ssm", cfg.JWTSecret)
}

func TestLoadAPI_Errors(t *testing.T) {
	_, err := LoadAPI(context.Background(), envMap(map[string]string{"JWT_SECRET": "x"}), nil)
	expectConfigError(t, err, "USERS_TABLE")

	_, err = LoadAPI(context.Background(), envMap(map[string]string{"USER_STORE": "csv", "JWT_SECRET": "x"}), nil)
	expectConfigError(t, err, "USER_STORE")

	_, err = LoadAPI(context.Background(), envMap(map[string]string{"USER_STORE": "sqlite"}), nil)
	expectConfigError(t, err, "JWT_SECRET")

	_, err = LoadAPI(context.Background(), envMap(map[string]string{"USER_STORE": "sqlite", "PARAM_PREFIX": "/relay"}), &fakeSecrets{err: errors.New("boom")})
	expectConfigError(t, err, "JWT_SECRET")
}
