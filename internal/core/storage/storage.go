// Package storage persists world saves. A save is a world snapshot,
// LZ4 compressed and sealed with a BLAKE3 checksum.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"lukechampine.com/blake3"

	"github.com/zeusync/homestead/internal/core/world"
	"github.com/zeusync/homestead/pkg/encoding"
)

var (
	ErrNotFound = errors.New("save not found")
	ErrCorrupt  = errors.New("save is corrupt")
)

// maxSnapshot bounds the inflated size of one save.
const maxSnapshot = 256 << 20

type Info struct {
	ID        int64
	Tick      uint64
	Size      int
	Checksum  string
	CreatedAt time.Time
}

type Store interface {
	Save(ctx context.Context, s *world.Snapshot) (int64, error)
	Load(ctx context.Context, id int64) (*world.Snapshot, error)
	// Latest returns the most recent save, or ErrNotFound.
	Latest(ctx context.Context) (*world.Snapshot, error)
	List(ctx context.Context, limit int) ([]Info, error)
	Close() error
}

type Config struct {
	Path string `yaml:"path" env:"PATH"`
	// Keep is the number of saves retained. Zero keeps every save.
	Keep int `yaml:"keep" env:"KEEP"`
}

func DefaultConfig() Config {
	return Config{Path: "homestead.db", Keep: 10}
}

// Seal encodes and compresses s and returns the blob with its checksum.
func Seal(s *world.Snapshot) (blob []byte, checksum string, err error) {
	data, err := s.Encode()
	if err != nil {
		return nil, "", fmt.Errorf("encode snapshot: %w", err)
	}
	if blob, err = encoding.Compress(data); err != nil {
		return nil, "", err
	}
	return blob, Checksum(blob), nil
}

// Unseal verifies blob against checksum and decodes it.
func Unseal(blob []byte, checksum string) (*world.Snapshot, error) {
	if got := Checksum(blob); got != checksum {
		return nil, fmt.Errorf("%w: checksum %s, want %s", ErrCorrupt, got, checksum)
	}
	data, err := encoding.Decompress(blob, maxSnapshot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	s, err := world.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return s, nil
}

func Checksum(blob []byte) string {
	sum := blake3.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
