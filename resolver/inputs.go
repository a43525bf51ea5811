package resolver

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

// maxInputListSize bounds URL list files read by ReadInputList
const maxInputListSize = 4 << 20

// ReadInputList reads newline separated inputs from path
func ReadInputList(fsys afero.Fs, path string) ([]string, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input list: %w", err)
	}
	if info.Size() > maxInputListSize {
		return nil, fmt.Errorf("input list %s is too large", path)
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input list: %w", err)
	}
	return ReadInputs(string(data)), nil
}

// ReadInputs splits text into inputs; blank lines and # comments are skipped
func ReadInputs(text string) []string {
	var inputs []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		inputs = append(inputs, line)
	}
	return inputs
}
