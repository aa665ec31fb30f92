package analysis

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// CanaryFilename is the name of the planted marker file
	CanaryFilename = "canary.opencrs"
	// CanaryString is the value passed to flags that take a string
	CanaryString  = "string"
	canaryContent = "canary"
)

// PlantCanary writes the marker file into dir and returns its path
func PlantCanary(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create canary directory %s: %v", dir, err)
	}
	path := filepath.Join(dir, CanaryFilename)
	if err := os.WriteFile(path, []byte(canaryContent), 0o644); err != nil {
		return "", fmt.Errorf("failed to plant canary: %v", err)
	}
	return path, nil
}
