package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	GitLab struct {
		URL string `koanf:"url"`
	} `koanf:"gitlab"`

	GitHub struct {
		BaseURL  string `koanf:"base_url"`
		APIURL   string `koanf:"api_url"`
		ClientID string `koanf:"client_id"`
		Scope    string `koanf:"scope"`
	} `koanf:"github"`

	Copilot struct {
		TokenURL            string `koanf:"token_url"`
		UserAgent           string `koanf:"user_agent"`
		EditorVersion       string `koanf:"editor_version"`
		EditorPluginVersion string `koanf:"editor_plugin_version"`
	} `koanf:"copilot"`

	Credentials struct {
		Backend string `koanf:"backend"` // "file" or "keyring"
		Dir     string `koanf:"dir"`
	} `koanf:"credentials"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"gitlab.url":                    "https://gitlab.com",
		"github.base_url":               "https://github.com",
		"github.api_url":                "https://api.github.com",
		"github.client_id":              "01ab8ac9400c4e429b23",
		"github.scope":                  "read:user",
		"copilot.token_url":             "https://api.github.com/copilot_internal/v2/token",
		"copilot.user_agent":            "GithubCopilot/1.155.0",
		"copilot.editor_version":        "vscode/1.80.1",
		"copilot.editor_plugin_version": "copilot.vim/1.16.0",
		"credentials.backend":           "file",
		"credentials.dir":               "$HOME/.reviewpilot",
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		// Try to load from default locations
		defaultPaths := []string{"./reviewpilot.toml", "$HOME/.reviewpilot.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix REVIEWPILOT_
	k.Load(env.Provider("REVIEWPILOT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "REVIEWPILOT_")), "_", ".", 1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	config.Credentials.Dir = os.ExpandEnv(config.Credentials.Dir)

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	// Create sample configuration
	sampleConfig := `# ReviewPilot Configuration

[gitlab]
url = "https://gitlab.example.com"

[github]
client_id = "01ab8ac9400c4e429b23"
scope = "read:user"

[credentials]
# "file" stores tokens under credentials.dir, "keyring" uses the OS keyring
backend = "file"
dir = "$HOME/.reviewpilot"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.GitLab.URL == "" {
		return fmt.Errorf("gitlab url is required")
	}

	if config.GitHub.ClientID == "" {
		return fmt.Errorf("github client_id is required")
	}

	switch config.Credentials.Backend {
	case "file":
		if config.Credentials.Dir == "" {
			return fmt.Errorf("credentials dir is required for the file backend")
		}
	case "keyring":
	default:
		return fmt.Errorf("unsupported credentials backend %q", config.Credentials.Backend)
	}

	return nil
}
