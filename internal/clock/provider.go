package clock

import (
	"errors"
	"io"
	"os"
	"strings"
)

// maxProviderBytes caps how much of a provider file we are willing to read.
// A time-of-day reading is at most 8 bytes plus whitespace.
const maxProviderBytes = 64

// FileProvider reads the time string from a small local file, typically
// maintained by another process (e.g. a feed under /run). A missing or
// oversized file counts as unavailable.
type FileProvider struct {
	Path        string
	Placeholder string // optional sentinel the writer uses for "unknown"
}

func (p *FileProvider) Read() (string, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	b, err := io.ReadAll(io.LimitReader(f, maxProviderBytes+1))
	if err != nil {
		return "", err
	}
	if len(b) > maxProviderBytes {
		return "", errors.New("time feed file too large")
	}
	return strings.TrimSpace(string(b)), nil
}

func (p *FileProvider) Sentinel() string { return p.Placeholder }
