package store

import (
	"crypto/sha256"
	"fmt"
)

// ContentHash returns the hex sha256 of a notebook's container bytes. It is
// stored with each capture and used to tell whether a persisted capture
// still matches the file on disk.
func ContentHash(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// IsCurrent reports whether the persisted capture for path was taken from
// content with the given hash. An unknown path is not current.
func (s *Store) IsCurrent(path, hash string) (bool, error) {
	nb, err := s.NotebookByPath(path)
	if err != nil {
		return false, err
	}
	return nb != nil && nb.Hash == hash, nil
}
