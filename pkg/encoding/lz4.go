// Package encoding holds the byte codecs shared by the wire protocol and
// the save store.
package encoding

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/zeusync/homestead/pkg/generic"
)

// Buffers that grew past maxPooled are left to the garbage collector.
const maxPooled = 1 << 20

var buffers = generic.NewHotPool(
	func() *bytes.Buffer { return new(bytes.Buffer) },
	func(b *bytes.Buffer) bool {
		b.Reset()
		return b.Cap() <= maxPooled
	},
	4,
)

// Compress returns src as an LZ4 frame.
func Compress(src []byte) ([]byte, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)

	zw := lz4.NewWriter(buf)
	if _, err := zw.Write(src); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

// Decompress reverses Compress. limit caps the decompressed size; zero
// means no cap.
func Decompress(src []byte, limit int64) ([]byte, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)

	var r io.Reader = lz4.NewReader(bytes.NewReader(src))
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(buf, r)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if limit > 0 && n > limit {
		return nil, fmt.Errorf("lz4 decompress: exceeds %d bytes", limit)
	}
	return bytes.Clone(buf.Bytes()), nil
}
