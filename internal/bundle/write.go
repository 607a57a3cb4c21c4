package bundle

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/leapstack-labs/leapbundle/internal/graph"
)

// Write writes the artifact files and assets under the output path. Each
// file is written to a temporary file and renamed into place, so readers
// never observe a partial artifact file.
func (e *Emitter) Write(a *Artifact) error {
	if e.cfg.OutputPath == "" {
		return fmt.Errorf("output path is not set")
	}
	if err := os.MkdirAll(e.cfg.OutputPath, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, f := range a.Files {
		if err := e.writeFile(filepath.Join(e.cfg.OutputPath, f.Name), f.Content); err != nil {
			return err
		}
	}

	if len(a.Assets) > 0 {
		dir := filepath.Join(e.cfg.OutputPath, AssetDir)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create asset directory: %w", err)
		}
		for _, as := range a.Assets {
			if err := e.writeFile(filepath.Join(dir, as.Name), as.Content); err != nil {
				return err
			}
		}
	}

	e.logger.Info("wrote artifact", "path", e.cfg.OutputPath, "files", len(a.Files), "assets", len(a.Assets))
	return nil
}

// Emit renders the graph and writes the result.
func (e *Emitter) Emit(g *graph.Graph) (*Artifact, error) {
	a, err := e.Render(g)
	if err != nil {
		return nil, err
	}
	if err := e.Write(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (e *Emitter) writeFile(path string, content []byte) error {
	if err := writeAtomic(path, content); err != nil {
		return err
	}
	if !e.cfg.Gzip {
		return nil
	}
	compressed, err := Gzip(content)
	if err != nil {
		return fmt.Errorf("failed to compress %s: %w", path, err)
	}
	return writeAtomic(path+".gz", compressed)
}

// Gzip compresses content at best compression.
func Gzip(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(content); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil { //nolint:gosec // G302: artifacts are served publicly
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return nil
}
