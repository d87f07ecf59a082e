package app

import (
	"log/slog"
	"net/http"

	"sealpost/internal/config"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Settings *config.Config // validated settings
	HTTP     *http.Client   // bootstrap client for provider discovery; defaults to http.DefaultClient
	Logger   *slog.Logger
}
