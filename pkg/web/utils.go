package web

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// decompress inflates a zlib body, failing once the output would exceed limit bytes.
func decompress(input []byte, limit int64) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(input))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out bytes.Buffer
	n, err := out.ReadFrom(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, fmt.Errorf("decompressed body exceeds %d bytes", limit)
	}
	return out.Bytes(), nil
}
