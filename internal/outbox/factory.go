package outbox

import (
	"fmt"

	"myvc/internal/config"
	"myvc/internal/vc"
)

// NewOutboxFromConfig creates an Outbox based on the config type. dir is the
// project's outbox directory, used by the "filesystem" type.
func NewOutboxFromConfig(cfg config.OutboxConfig, dir string) (vc.Outbox, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryOutbox(), nil
	case "filesystem", "":
		if dir == "" {
			return nil, fmt.Errorf("filesystem outbox requires a directory")
		}
		return NewFileSystemOutbox(dir)
	default:
		return nil, fmt.Errorf("unknown outbox type: %s", cfg.Type)
	}
}
