package fetch

import (
	"hash"
	"io"
)

// hashReader feeds everything read through it into a hash.
type hashReader struct {
	io.Reader
	hash.Hash
}

func newHashReader(source io.Reader, target hash.Hash) *hashReader {
	return &hashReader{Reader: source, Hash: target}
}

func (h *hashReader) Read(buffer []byte) (int, error) {
	count, err := h.Reader.Read(buffer)
	_, _ = h.Hash.Write(buffer[:count])
	return count, err
}
