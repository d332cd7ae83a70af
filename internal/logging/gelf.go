package logging

import (
	"fmt"
	"io"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGelfWriter connects a UDP GELF writer for the given Graylog address.
// The returned writer is safe to hand to Setup as the gelf sink.
func NewGelfWriter(address string) (io.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("connecting GELF writer to %s: %w", address, err)
	}
	return w, nil
}
