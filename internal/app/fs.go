package app

import (
	"fmt"
	"os"
)

func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("app: create %s: %w", dir, err)
	}
	return nil
}
