package ml

import (
	"errors"
	"io/fs"
	"os"
)

// LoadArtifact reads a persisted artifact. Failures are always *LoadError:
// LoadNotFound when the file is absent, LoadCorrupt otherwise.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Kind: LoadNotFound, Path: path, Err: err}
		}
		return nil, &LoadError{Kind: LoadCorrupt, Path: path, Err: err}
	}
	artifact, err := UnmarshalArtifact(data)
	if err != nil {
		return nil, &LoadError{Kind: LoadCorrupt, Path: path, Err: err}
	}
	return artifact, nil
}
