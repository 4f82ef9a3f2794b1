package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/roach88/reckon/internal/recon"
)

// File-backed collaborator implementations. Each run reads complete
// batch files; there is no streaming ingestion in the CLI.

// fileIngestion loads the raw and authoritative batches from JSON files.
type fileIngestion struct {
	rawPath  string
	authPath string
}

func (f fileIngestion) RawTransactions(_ context.Context) ([]recon.RawTransaction, error) {
	var batch []recon.RawTransaction
	if err := readJSONFile(f.rawPath, &batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (f fileIngestion) AuthoritativeRecords(_ context.Context) ([]recon.AuthoritativeRecord, error) {
	var batch []recon.AuthoritativeRecord
	if err := readJSONFile(f.authPath, &batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// fileAggregates reads the independently derived stamped count. The file
// is produced by the aggregate pipeline, not by reckon.
type fileAggregates struct {
	path string
}

type aggregateDoc struct {
	StampedCount int64 `json:"stamped_count"`
}

func (f fileAggregates) StampedCount(_ context.Context) (int64, error) {
	var doc aggregateDoc
	if err := readJSONFile(f.path, &doc); err != nil {
		return 0, err
	}
	return doc.StampedCount, nil
}

// fileStoreDims reads the store-to-municipality dimension map.
type fileStoreDims struct {
	path string
}

func (f fileStoreDims) Municipalities(_ context.Context) (map[string]string, error) {
	dims := make(map[string]string)
	if err := readJSONFile(f.path, &dims); err != nil {
		return nil, err
	}
	return dims, nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
