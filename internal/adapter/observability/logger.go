package observability

import (
	"io"
	"log/slog"
	"os"

	"github.com/Buringskul/cv-feedback-bot/internal/config"
)

// SetupLogger configures a JSON slog logger on stdout tagged with service and env.
func SetupLogger(cfg config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, opts)).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}
