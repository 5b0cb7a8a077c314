package paths

import (
	"os"
	"path/filepath"
)

// TelemetryJSONFileName is the name of the shared opt-in file written to the
// user's home directory.
const TelemetryJSONFileName = "officeAddinTelemetry.json"

// GetHomeDir returns the user's home directory.
//
// Returns an empty string if the home directory cannot be determined.
func GetHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Clean(homeDir)
}

// DefaultTelemetryJSONFile returns the path of the opt-in file shared by every
// tool that reports through this package.
//
// If the home directory cannot be determined, it falls back to the system
// temporary directory. This is a best-effort fallback and not intended to be
// a security boundary.
func DefaultTelemetryJSONFile() string {
	return filepath.Join(orTempDir(GetHomeDir()), TelemetryJSONFileName)
}

// GetDataDir returns the directory used for debug logs.
func GetDataDir() string {
	return filepath.Join(orTempDir(GetHomeDir()), ".addin-telemetry")
}

func orTempDir(dir string) string {
	if dir == "" {
		return filepath.Clean(os.TempDir())
	}
	return dir
}
