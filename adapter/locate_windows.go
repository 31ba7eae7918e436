//go:build windows

package adapter

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows/registry"
)

// runtimeKey is written by the engine installer.
const runtimeKey = `SOFTWARE\Wow6432Node\Siemens\Shared Tools\PLCSIMADV_SimRT`

func installRoot() (string, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, runtimeKey, registry.QUERY_VALUE)
	if err != nil {
		return "", fmt.Errorf("%w: open HKLM\\%s: %v", ErrNotInstalled, runtimeKey, err)
	}
	defer k.Close()
	path, _, err := k.GetStringValue("Path")
	if err != nil {
		return "", fmt.Errorf("%w: read Path: %v", ErrNotInstalled, err)
	}
	return path, nil
}

func userInterfacePath(string) string {
	programFiles := os.Getenv("ProgramFiles(x86)")
	if programFiles == "" {
		programFiles = `C:\Program Files (x86)`
	}
	return filepath.Join(programFiles, "Siemens", "Automation", "PLCSIMADV", "bin", UserInterfaceExe)
}
