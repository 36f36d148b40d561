package llm

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Provider names.
const (
	OpenAIName    = "openai"
	AnthropicName = "anthropic"
	GeminiName    = "gemini"
)

// Names lists the supported providers in detection order.
var Names = []string{OpenAIName, AnthropicName, GeminiName}

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrNoCredentials   = errors.New("no API key configured")
)

// DefaultHTTPTimeout bounds a single completion call.
const DefaultHTTPTimeout = 120 * time.Second

// Config holds the settings of one provider.
type Config struct {
	APIKey       string            `yaml:"api_key"       json:"api_key,omitempty"`
	BaseURL      string            `yaml:"base_url"      json:"base_url,omitempty"`
	Model        string            `yaml:"model"         json:"model,omitempty"`
	ExtraHeaders map[string]string `yaml:"extra_headers" json:"extra_headers,omitempty"`
}

// Options carries everything a provider needs to resolve its settings.
// Precedence is Explicit, then File[name], then the environment.
type Options struct {
	Explicit   Config
	File       map[string]Config
	Env        func(string) (string, bool)
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type envKeys struct {
	apiKey  string
	baseURL string
}

var providerEnv = map[string]envKeys{
	OpenAIName:    {apiKey: "OPENAI_API_KEY", baseURL: "OPENAI_BASE_URL"},
	AnthropicName: {apiKey: "ANTHROPIC_API_KEY", baseURL: "ANTHROPIC_BASE_URL"},
	GeminiName:    {apiKey: "GOOGLE_API_KEY"},
}

func (o Options) env(key string) string {
	if key == "" {
		return ""
	}
	lookup := o.Env
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

// resolve merges the configuration layers for the named provider.
func (o Options) resolve(name, defaultModel string) Config {
	file := o.File[name]
	keys := providerEnv[name]
	return Config{
		APIKey:       first(o.Explicit.APIKey, file.APIKey, o.env(keys.apiKey)),
		BaseURL:      first(o.Explicit.BaseURL, file.BaseURL, o.env(keys.baseURL)),
		Model:        first(o.Explicit.Model, file.Model, defaultModel),
		ExtraHeaders: firstMap(o.Explicit.ExtraHeaders, file.ExtraHeaders),
	}
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstMap(maps ...map[string]string) map[string]string {
	for _, m := range maps {
		if len(m) > 0 {
			return m
		}
	}
	return nil
}

// New constructs the named provider.
func New(name string, opts Options) (Provider, error) {
	switch name {
	case OpenAIName:
		return NewOpenAI(opts), nil
	case AnthropicName:
		return NewAnthropic(opts), nil
	case GeminiName:
		return NewGemini(opts), nil
	}
	return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownProvider, name, strings.Join(Names, ", "))
}

// Available returns the names of providers that have a credential in the
// configuration file or the environment, in detection order.
func Available(opts Options) []string {
	opts.Explicit = Config{}
	var names []string
	for _, name := range Names {
		if opts.resolve(name, "").APIKey != "" {
			names = append(names, name)
		}
	}
	return names
}
