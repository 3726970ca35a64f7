package replay

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"connect4/game"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const batchRows = 512

type sampleRow struct {
	Fingerprint string    `parquet:"fingerprint,dict"`
	Wins        int32     `parquet:"wins"`
	Draws       int32     `parquet:"draws"`
	Losses      int32     `parquet:"losses"`
	Policy      []float64 `parquet:"policy"`
}

// Save writes the committed samples, oldest first, with the tally each
// position had at write time.
func (b *Buffer) Save(path string) error {
	b.mu.RLock()
	rows := make([]sampleRow, len(b.samples))
	for i, s := range b.ordered() {
		o := b.tallies[s.Fingerprint]
		rows[i] = sampleRow{
			Fingerprint: s.Fingerprint,
			Wins:        int32(o.Wins),
			Draws:       int32(o.Draws),
			Losses:      int32(o.Losses),
			Policy:      s.Policy,
		}
	}
	b.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmpPath := path + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", "replay_sample_v1"),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// Load reads a buffer written by Save. A missing file yields an empty buffer.
// When the file holds more than capacity samples the oldest are dropped.
func Load(path string, capacity int) (*Buffer, error) {
	b := NewBuffer(capacity)

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open replay buffer: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[sampleRow](f)
	defer reader.Close()

	buf := make([]sampleRow, batchRows)
	for {
		n, err := reader.Read(buf)
		for _, row := range buf[:n] {
			if err := b.restore(row); err != nil {
				return nil, err
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet: %w", err)
		}
		if n == 0 {
			break
		}
	}
	b.fresh = 0
	return b, nil
}

func (b *Buffer) restore(row sampleRow) error {
	p, err := game.ParseFingerprint(row.Fingerprint)
	if err != nil {
		return fmt.Errorf("load replay buffer: %w", err)
	}
	outcome := Outcome{Wins: int(row.Wins), Draws: int(row.Draws), Losses: int(row.Losses)}
	b.tallies[row.Fingerprint] = outcome
	b.push(Sample{
		Fingerprint: row.Fingerprint,
		Board:       game.Decode(p),
		Policy:      append([]float64(nil), row.Policy...),
		Outcome:     outcome,
	})
	return nil
}
