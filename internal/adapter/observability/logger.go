package observability

import (
	"log/slog"
	"os"

	"github.com/fairyhunter13/ai-deep-researcher/internal/config"
)

// SetupLogger builds the process-wide JSON logger. Dev gets debug level;
// every record carries service and env so aggregated streams stay
// attributable across the server and worker binaries.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}
