package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/joho/godotenv"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"

	"github.com/kiranojhanp/ai-agents/pkg/asana"
	"github.com/kiranojhanp/ai-agents/pkg/ledger"
	"github.com/kiranojhanp/ai-agents/pkg/llm"
	anthropicllm "github.com/kiranojhanp/ai-agents/pkg/llm/anthropic"
	openaillm "github.com/kiranojhanp/ai-agents/pkg/llm/openai"
	"github.com/kiranojhanp/ai-agents/pkg/prompt"
	"github.com/kiranojhanp/ai-agents/pkg/tool"
	"github.com/kiranojhanp/ai-agents/pkg/tool/task"
)

const (
	DefaultModel    = "gpt-4o-mini"
	DefaultMaxDepth = 5

	DefaultAzureAPIVersion = "2025-03-01-preview"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Model    string
	Provider llm.Provider

	Tools        *tool.Registry
	Instructions string

	MaxDepth int

	Ledger *ledger.Ledger
	Logger *slog.Logger
}

// Settings are the raw process settings read from the environment.
type Settings struct {
	Provider string
	Model    string

	OpenAIKey     string
	OpenAIBaseURL string

	AzureEndpoint   string
	AzureAPIVersion string
	AzureKey        string

	AnthropicKey string

	AsanaToken   string
	AsanaProject string
	AsanaBaseURL string

	MaxDepth int

	LedgerPath string
	LogLevel   slog.Level
}

// Default loads .env (if present) and the process environment and builds
// the complete configuration. The returned cleanup releases resources.
func Default() (*Config, func(), error) {
	_ = godotenv.Load()

	settings, err := Load(os.Getenv)

	if err != nil {
		return nil, nil, err
	}

	return New(settings)
}

// Load reads and validates settings. All missing required values are
// reported together.
func Load(getenv func(string) string) (*Settings, error) {
	get := func(key string) string {
		return strings.TrimSpace(getenv(key))
	}

	s := &Settings{
		Model: get("LLM_MODEL"),

		OpenAIKey:     get("OPENAI_API_KEY"),
		OpenAIBaseURL: get("OPENAI_BASE_URL"),

		AzureEndpoint:   get("AZURE_OPENAI_ENDPOINT"),
		AzureAPIVersion: get("AZURE_OPENAI_API_VERSION"),
		AzureKey:        get("AZURE_OPENAI_API_KEY"),

		AnthropicKey: get("ANTHROPIC_API_KEY"),

		AsanaToken:   get("ASANA_ACCESS_TOKEN"),
		AsanaProject: get("ASANA_PROJECT_ID"),
		AsanaBaseURL: get("ASANA_BASE_URL"),

		MaxDepth: DefaultMaxDepth,

		LedgerPath: get("LEDGER_PATH"),
		LogLevel:   slog.LevelInfo,
	}

	if s.Model == "" {
		s.Model = get("OPENAI_MODEL")
	}

	if s.Model == "" {
		s.Model = DefaultModel
	}

	if s.AzureAPIVersion == "" {
		s.AzureAPIVersion = DefaultAzureAPIVersion
	}

	var errs []error

	provider, err := resolveProvider(get("LLM_PROVIDER"), s.Model, s.AzureEndpoint)

	if err != nil {
		errs = append(errs, err)
	}

	s.Provider = provider

	switch provider {
	case ProviderOpenAI:
		if s.OpenAIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is not set"))
		}

	case ProviderAzure:
		if s.AzureEndpoint == "" {
			errs = append(errs, errors.New("AZURE_OPENAI_ENDPOINT is not set"))
		}

	case ProviderAnthropic:
		if s.AnthropicKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is not set"))
		}
	}

	if s.AsanaToken == "" {
		errs = append(errs, errors.New("ASANA_ACCESS_TOKEN is not set"))
	}

	if s.AsanaProject == "" {
		errs = append(errs, errors.New("ASANA_PROJECT_ID is not set"))
	}

	if v := get("AGENT_MAX_DEPTH"); v != "" {
		depth, err := strconv.Atoi(v)

		if err != nil || depth < 1 {
			errs = append(errs, fmt.Errorf("AGENT_MAX_DEPTH must be a positive integer, got %q", v))
		} else {
			s.MaxDepth = depth
		}
	}

	if v := get("LOG_LEVEL"); v != "" {
		if err := s.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL is invalid: %q", v))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return s, nil
}

var openAIModel = regexp.MustCompile(`^o[0-9]`)

func resolveProvider(explicit, model, azureEndpoint string) (string, error) {
	switch p := strings.ToLower(explicit); p {
	case ProviderOpenAI, ProviderAzure, ProviderAnthropic:
		return p, nil

	case "":

	default:
		return "", fmt.Errorf("LLM_PROVIDER %q is not supported (openai, azure, anthropic)", explicit)
	}

	if azureEndpoint != "" {
		return ProviderAzure, nil
	}

	name := strings.ToLower(model)

	if strings.Contains(name, "gpt") || openAIModel.MatchString(name) {
		return ProviderOpenAI, nil
	}

	return ProviderAnthropic, nil
}

// New builds clients and the capability catalog from validated settings.
func New(s *Settings) (*Config, func(), error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: s.LogLevel,
	}))

	provider, err := createProvider(s)

	if err != nil {
		return nil, nil, err
	}

	var asanaOptions []asana.Option

	if s.AsanaBaseURL != "" {
		asanaOptions = append(asanaOptions, asana.WithBaseURL(s.AsanaBaseURL))
	}

	client, err := asana.New(s.AsanaToken, asanaOptions...)

	if err != nil {
		return nil, nil, err
	}

	tools, err := tool.NewRegistry(task.Tools(client, task.Options{
		Project: s.AsanaProject,
	})...)

	if err != nil {
		return nil, nil, err
	}

	instructions, err := prompt.System(time.Now())

	if err != nil {
		return nil, nil, fmt.Errorf("failed to render instructions: %w", err)
	}

	cfg := &Config{
		Model:    s.Model,
		Provider: provider,

		Tools:        tools,
		Instructions: instructions,

		MaxDepth: s.MaxDepth,

		Logger: logger,
	}

	if s.LedgerPath != "" {
		l, err := ledger.Open(s.LedgerPath)

		if err != nil {
			return nil, nil, fmt.Errorf("failed to open ledger: %w", err)
		}

		cfg.Ledger = l
	}

	return cfg, cfg.Cleanup, nil
}

func createProvider(s *Settings) (llm.Provider, error) {
	switch s.Provider {
	case ProviderAnthropic:
		client := anthropic.NewClient(
			aoption.WithAPIKey(s.AnthropicKey),
		)

		return anthropicllm.New(client, s.Model), nil

	case ProviderAzure:
		options := []option.RequestOption{
			azure.WithEndpoint(s.AzureEndpoint, s.AzureAPIVersion),
		}

		if s.AzureKey != "" {
			options = append(options, azure.WithAPIKey(s.AzureKey))
		} else {
			credential, err := azidentity.NewDefaultAzureCredential(nil)

			if err != nil {
				return nil, fmt.Errorf("failed to create azure credential: %w", err)
			}

			options = append(options, azure.WithTokenCredential(credential))
		}

		return openaillm.New(openai.NewClient(options...), s.Model), nil

	default:
		options := []option.RequestOption{
			option.WithAPIKey(s.OpenAIKey),
		}

		if s.OpenAIBaseURL != "" {
			options = append(options, option.WithBaseURL(s.OpenAIBaseURL))
		}

		return openaillm.New(openai.NewClient(options...), s.Model), nil
	}
}

func (c *Config) Cleanup() {
	if c.Ledger != nil {
		c.Ledger.Close()
	}
}
