// Package adapter provides adapters for plcsim-starter integration with external systems.
package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// UserInterfaceExe is the engine UI program started for the first session.
const UserInterfaceExe = "Siemens.Simatic.PlcSim.Advanced.UserInterface.exe"

// ErrNotInstalled is returned when no engine installation can be found.
var ErrNotInstalled = errors.New("adapter: simulation engine is not installed")

// Installation is where the engine lives on this machine.
type Installation struct {
	// Root is the runtime directory.
	Root string
	// APIDir holds the runtime API library.
	APIDir string
	// UserInterface is the full path of the engine UI program.
	UserInterface string
}

// Locate resolves the engine installation once at startup. A non-empty
// root overrides the platform lookup.
func Locate(root string) (Installation, error) {
	if root == "" {
		var err error
		root, err = installRoot()
		if err != nil {
			return Installation{}, err
		}
	}
	if _, err := os.Stat(root); err != nil {
		return Installation{}, fmt.Errorf("%w: %v", ErrNotInstalled, err)
	}
	return Installation{
		Root:          root,
		APIDir:        filepath.Join(root, "API", "4.0"),
		UserInterface: userInterfacePath(root),
	}, nil
}
