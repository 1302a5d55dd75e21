package orch

import (
	"os"
	"path/filepath"
	"strings"

	"phasegate/pkg/config"
)

// StopFileName is the sentinel an operator drops into the project state
// directory to halt runs.
const StopFileName = "EMERGENCY_STOP"

// FileStopSource stops runs when a sentinel file exists. The file body, if
// any, is reported as the stop reason.
type FileStopSource struct {
	path string
}

// NewFileStopSource creates a stop source watching <root>/.phasegate/EMERGENCY_STOP.
func NewFileStopSource(root string) *FileStopSource {
	return &FileStopSource{path: filepath.Join(root, config.ProjectConfigDir, StopFileName)}
}

// Check implements StopSource.
func (f *FileStopSource) Check() (bool, string) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return false, ""
	}
	reason := strings.TrimSpace(string(data))
	if reason == "" {
		reason = "emergency stop file present"
	}
	return true, reason
}
