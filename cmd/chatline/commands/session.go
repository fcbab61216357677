package commands

import (
	"net/http"

	"github.com/eachlabs/chatline/internal/config"
	"github.com/eachlabs/chatline/internal/exchange"
	"github.com/eachlabs/chatline/internal/history"
)

// newHistoryClient builds the conversation-history client from cfg.
func newHistoryClient(cfg *config.Config) *history.Client {
	return history.NewClient(history.Config{
		BaseURL:     cfg.API.BaseURL,
		UserAgent:   cfg.API.UserAgent,
		Credentials: cfg.Credentials(),
		HTTPClient:  &http.Client{Timeout: cfg.API.Timeout.Duration},
		Limiter:     exchange.NewLimiter(cfg.API.RequestsPerSecond),
	})
}

// newController builds an exchange controller for model (or the configured
// default) with history loading enabled.
func newController(cfg *config.Config, model string) *exchange.Controller {
	if model == "" {
		model = cfg.Defaults.Model
	}
	limiter := exchange.NewLimiter(cfg.API.RequestsPerSecond)

	return exchange.New(exchange.Config{
		BaseURL:            cfg.API.BaseURL,
		Model:              model,
		Temperature:        cfg.Defaults.Temperature,
		MaxTokens:          cfg.Defaults.MaxTokens,
		ConversationScoped: cfg.API.ConversationScoped,
		UserAgent:          cfg.API.UserAgent,
		Timeout:            cfg.API.Timeout.Duration,
		Credentials:        cfg.Credentials(),
		Limiter:            limiter,
	}, nil, exchange.WithHistory(newHistoryClient(cfg)))
}
