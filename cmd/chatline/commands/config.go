package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/eachlabs/chatline/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage chatline configuration.

Subcommands:
  get [key]              Show configuration value(s)
  set <key> <value>      Set a configuration value
  path                   Show config file path`,
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show configuration",
	Long: `Show configuration values.

Examples:
  chatline config get                 # Show all config
  chatline config get api.base_url
  chatline config get defaults.model`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			return toml.NewEncoder(out).Encode(cfg)
		}

		key := args[0]
		value := getConfigValue(cfg, key)
		if value == nil {
			return fmt.Errorf("key not found: %s", key)
		}

		if jsonOut {
			return json.NewEncoder(out).Encode(value)
		}
		fmt.Fprintf(out, "%v\n", value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value and save the config file.

Keys:
  api.base_url, api.api_key, api.bearer_token, api.timeout,
  api.requests_per_second, api.user_agent, api.conversation_scoped,
  defaults.model, defaults.temperature, defaults.max_tokens, defaults.stream,
  logging.level, logging.file, logging.format

Examples:
  chatline config set api.base_url http://localhost:8000/api/v1
  chatline config set defaults.stream false`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Env overrides must not end up in the file.
		path := configPath()
		fileCfg, err := config.ReadFile(path)
		if err != nil {
			return err
		}

		if err := setConfigValue(fileCfg, args[0], args[1]); err != nil {
			return err
		}
		if err := fileCfg.Save(path); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), configPath())
	},
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.ConfigPath()
}

func getConfigValue(cfg *config.Config, key string) interface{} {
	parts := strings.Split(key, ".")

	switch parts[0] {
	case "api":
		if len(parts) == 1 {
			return cfg.API
		}
		switch parts[1] {
		case "base_url":
			return cfg.API.BaseURL
		case "api_key":
			return cfg.API.APIKey
		case "bearer_token":
			return cfg.API.BearerToken
		case "timeout":
			return cfg.API.Timeout.String()
		case "requests_per_second":
			return cfg.API.RequestsPerSecond
		case "user_agent":
			return cfg.API.UserAgent
		case "conversation_scoped":
			return cfg.API.ConversationScoped
		}

	case "defaults":
		if len(parts) == 1 {
			return cfg.Defaults
		}
		switch parts[1] {
		case "model":
			return cfg.Defaults.Model
		case "temperature":
			return cfg.Defaults.Temperature
		case "max_tokens":
			return cfg.Defaults.MaxTokens
		case "stream":
			return cfg.Defaults.Stream
		}

	case "logging":
		if len(parts) == 1 {
			return cfg.Logging
		}
		switch parts[1] {
		case "level":
			return cfg.Logging.Level
		case "file":
			return cfg.Logging.File
		case "format":
			return cfg.Logging.Format
		}
	}

	return nil
}

func setConfigValue(cfg *config.Config, key, value string) error {
	var err error

	switch key {
	case "api.base_url":
		cfg.API.BaseURL = strings.TrimSuffix(value, "/")
	case "api.api_key":
		cfg.API.APIKey = value
	case "api.bearer_token":
		cfg.API.BearerToken = value
	case "api.timeout":
		err = cfg.API.Timeout.UnmarshalText([]byte(value))
	case "api.requests_per_second":
		cfg.API.RequestsPerSecond, err = strconv.ParseFloat(value, 64)
	case "api.user_agent":
		cfg.API.UserAgent = value
	case "api.conversation_scoped":
		cfg.API.ConversationScoped, err = strconv.ParseBool(value)
	case "defaults.model":
		cfg.Defaults.Model = value
	case "defaults.temperature":
		cfg.Defaults.Temperature, err = strconv.ParseFloat(value, 64)
	case "defaults.max_tokens":
		cfg.Defaults.MaxTokens, err = strconv.Atoi(value)
	case "defaults.stream":
		cfg.Defaults.Stream, err = strconv.ParseBool(value)
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.file":
		cfg.Logging.File = value
	case "logging.format":
		cfg.Logging.Format = value
	default:
		return fmt.Errorf("invalid key: %s", key)
	}

	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}
