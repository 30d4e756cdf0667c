package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Open constructs a Store per driver ("sqlite" or "json") rooted at root,
// matching config.StorageConfig.Driver.
func Open(root, driver string, logger *zap.Logger) (Store, error) {
	switch driver {
	case "", "json":
		return NewJSONStore(root, logger), nil
	case "sqlite":
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("persistence: create storage root: %w", err)
		}
		db, err := gorm.Open(sqlite.Open(filepath.Join(root, "agentcore.db")), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("persistence: open sqlite: %w", err)
		}
		gs, err := NewGormStore(db, logger)
		if err != nil {
			return nil, err
		}
		if err := gs.Ping(context.Background()); err != nil {
			return nil, fmt.Errorf("persistence: sqlite unreachable: %w", err)
		}
		return gs, nil
	default:
		return nil, fmt.Errorf("persistence: unknown driver %q", driver)
	}
}
