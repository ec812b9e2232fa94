package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Encode writes report as indented JSON.
func Encode(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// WriteFile writes report to path, creating parent directories.
func WriteFile(path string, report Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reconcile: create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("reconcile: create report: %w", err)
	}
	if err := Encode(f, report); err != nil {
		_ = f.Close()
		return fmt.Errorf("reconcile: write report: %w", err)
	}
	return f.Close()
}

// ObjectPutter stores blobs; objectstore.Store satisfies it.
type ObjectPutter interface {
	Put(ctx context.Context, name, contentType string, data []byte) error
}

// Archive uploads report under a dated, unique name and returns that name.
func Archive(ctx context.Context, store ObjectPutter, report Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("reconcile: encode report: %w", err)
	}
	name := fmt.Sprintf("reconciliation/%s/%s.json", report.GeneratedAt.Format("2006-01-02"), uuid.NewString())
	if err := store.Put(ctx, name, "application/json", data); err != nil {
		return "", err
	}
	return name, nil
}
