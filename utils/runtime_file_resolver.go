package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RuntimeFileResolver finds auxiliary files such as the land-cover lookup
// table on a colon separated search path, then the working directory and
// the executable's directory.
type RuntimeFileResolver struct {
	DataDirs   []string
	fileLookup map[string]string
}

func NewRuntimeFileResolver(searchPath string) *RuntimeFileResolver {
	resolver := &RuntimeFileResolver{
		fileLookup: make(map[string]string),
	}

	for _, dataDir := range strings.Split(searchPath, ":") {
		dataDir = strings.TrimSpace(dataDir)
		if len(dataDir) == 0 {
			continue
		}
		resolver.DataDirs = append(resolver.DataDirs, dataDir)
	}

	if cwd, err := os.Getwd(); err == nil {
		resolver.DataDirs = append(resolver.DataDirs, cwd)
	}
	resolver.DataDirs = append(resolver.DataDirs, filepath.Dir(os.Args[0]))
	return resolver
}

func (r *RuntimeFileResolver) Resolve(filePath string) (string, error) {
	if filepath.IsAbs(filePath) {
		return filePath, checkFile(filePath)
	}

	for _, dataDir := range r.DataDirs {
		for _, candidate := range []string{filePath, filepath.Join("LUT", filePath)} {
			path := filepath.Clean(filepath.Join(dataDir, candidate))
			if checkFile(path) == nil {
				return path, nil
			}
		}
	}

	return filePath, fmt.Errorf("Failed to resolve %v in %v: %w", filePath, r.DataDirs, ErrConfig)
}

func (r *RuntimeFileResolver) Lookup(filePath string) (string, error) {
	if path, found := r.fileLookup[filePath]; found {
		return path, nil
	}

	path, err := r.Resolve(filePath)
	if err != nil {
		return "", err
	}
	r.fileLookup[filePath] = path
	return path, nil
}

// LoadLookupTable resolves and parses a land-cover lookup table.
func (r *RuntimeFileResolver) LoadLookupTable(filePath string) (*LookupTable, error) {
	path, err := r.Lookup(filePath)
	if err != nil {
		return nil, err
	}
	return LoadLookupTable(path)
}

func checkFile(filePath string) error {
	st, err := os.Stat(filePath)
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("%s is a directory", filePath)
	}
	return nil
}
