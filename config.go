package cosmopolite

import (
	"context"
	"fmt"

	"github.com/cosmopolite/cosmopolite-go/internal/config"
)

// NewFromFile is the config-file counterpart to New: it loads client tuning
// knobs from a YAML file via internal/config.LoadOptions, translates them
// into Options, and constructs a Client exactly as New would. extra is
// applied after the file's settings, so a caller can override individual
// knobs (for example WithCallbacks, which has no file representation)
// without forking the file.
func NewFromFile(ctx context.Context, path string, extra ...Option) (*Client, error) {
	settings, err := config.LoadOptions(path)
	if err != nil {
		return nil, fmt.Errorf("cosmopolite: load config %s: %w", path, err)
	}

	opts := []Option{
		WithCycleBase(settings.CycleBase),
		WithStaggerFactor(settings.StaggerFactor),
		WithConnectTimeout(settings.ConnectTimeout),
	}
	if settings.Debug {
		opts = append(opts, WithDebug(true))
	}
	opts = append(opts, extra...)

	return New(ctx, settings.BaseURL, opts...)
}

// FindConfigFile locates a config file for NewFromFile: an explicit path
// always wins, otherwise it searches the standard search path
// (./cosmopolite.yaml, ~/.config/cosmopolite/config.yaml,
// /etc/cosmopolite/config.yaml).
func FindConfigFile(explicit string) (string, error) {
	return config.FindConfig(explicit)
}
