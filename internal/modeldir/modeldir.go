// Package modeldir inspects the model weights root served by the models
// endpoint.
package modeldir

import (
	"errors"
	"io/fs"
	"os"
)

// List returns the installed model directory names directly under root.
// A missing root is an empty installation, not an error.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
