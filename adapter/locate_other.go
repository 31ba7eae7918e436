//go:build !windows

package adapter

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv points at the engine installation on platforms without a registry.
const HomeEnv = "PLCSIM_HOME"

func installRoot() (string, error) {
	root := os.Getenv(HomeEnv)
	if root == "" {
		return "", fmt.Errorf("%w: %s not set", ErrNotInstalled, HomeEnv)
	}
	return root, nil
}

func userInterfacePath(root string) string {
	return filepath.Join(root, "bin", UserInterfaceExe)
}
