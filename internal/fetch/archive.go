package fetch

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/mholt/archiver"
)

// ErrNotArchive is returned for files whose format is not a known archive.
var ErrNotArchive = errors.New("not a recognised archive")

// Contains reports whether the archive at archivePath has a regular file
// entry whose base name is binary.
func Contains(archivePath, binary string) (bool, error) {
	names, err := Entries(archivePath)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if path.Base(name) == binary {
			return true, nil
		}
	}
	return false, nil
}

// Entries lists the regular files in the archive at archivePath.
func Entries(archivePath string) ([]string, error) {
	if _, err := archiver.ByExtension(archivePath); err != nil {
		return nil, fmt.Errorf("%s: %w", path.Base(archivePath), ErrNotArchive)
	}

	var names []string
	err := archiver.Walk(archivePath, func(f archiver.File) error {
		if f.IsDir() {
			return nil
		}
		names = append(names, strings.TrimPrefix(f.Name(), "./"))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read archive %s: %w", path.Base(archivePath), err)
	}
	return names, nil
}
