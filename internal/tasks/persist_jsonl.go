package tasks

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spetr/doit/pkg/types"
)

// JSONLPersister stores one JSON task per line.
type JSONLPersister struct {
	path string
}

// NewJSONLPersister creates a persister writing to path.
func NewJSONLPersister(path string) *JSONLPersister {
	return &JSONLPersister{path: path}
}

// Load reads all tasks. A missing file yields an empty list.
func (p *JSONLPersister) Load() ([]types.Task, error) {
	items, err := loadJSONL[types.Task](p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", p.path, err)
	}
	return items, nil
}

// Save replaces the file contents atomically.
func (p *JSONLPersister) Save(tasks []types.Task) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return saveJSONL(p.path, tasks)
}

// loadJSONL loads items from a JSONL file.
func loadJSONL[T any](path string) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var items []T
	// Lines are read whole: a task text may be as long as the largest scanned file
	reader := bufio.NewReaderSize(file, 64*1024)

	lineNum := 0
	for {
		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, readErr
		}

		lineNum++
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var item T
			if err := json.Unmarshal(line, &item); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			items = append(items, item)
		}

		if readErr != nil {
			return items, nil
		}
	}
}

// saveJSONL writes items to a temp file and renames it over path.
func saveJSONL[T any](path string, items []T) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	fail := func(err error) error {
		file.Close()
		os.Remove(tmpPath)
		return err
	}

	writer := bufio.NewWriter(file)
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fail(err)
		}
		if _, err := writer.Write(append(data, '\n')); err != nil {
			return fail(err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fail(err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, path)
}
