package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ErrCorrupt marks a persisted document that exists but cannot be trusted.
// It is never replaced with defaults.
var ErrCorrupt = errors.New("corrupt portfolio document")

// requiredKeys must all be present and non-null in a persisted document.
var requiredKeys = []string{"cash", "shares", "total_invested", "last_pe", "funded_years", "history"}

type Store interface {
	Load(ctx context.Context) (Portfolio, error)
	Save(ctx context.Context, p Portfolio) error
	Location() string
}

// Open picks a backend from location: s3://bucket/key or a file path.
func Open(ctx context.Context, location string, seedPE decimal.Decimal) (Store, error) {
	if strings.HasPrefix(location, "s3://") {
		return NewS3StoreFromURL(ctx, location, seedPE)
	}
	if location == "" {
		return nil, fmt.Errorf("state location is empty")
	}
	return NewFileStore(location, seedPE), nil
}

type FileStore struct {
	path   string
	seedPE decimal.Decimal
}

func NewFileStore(path string, seedPE decimal.Decimal) *FileStore {
	return &FileStore{path: path, seedPE: seedPE}
}

func (s *FileStore) Location() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (Portfolio, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(s.seedPE), nil
		}
		return Portfolio{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	return decode(data)
}

// Save writes to a temp file in the same directory and renames it over
// the previous document, so readers see either the old or the new one.
func (s *FileStore) Save(ctx context.Context, p Portfolio) error {
	data, err := encode(p)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func decode(data []byte) (Portfolio, error) {
	var p Portfolio
	if err := json.Unmarshal(data, &p); err != nil {
		return Portfolio{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !gjson.ParseBytes(data).IsObject() {
		return Portfolio{}, fmt.Errorf("%w: document is not an object", ErrCorrupt)
	}
	for _, key := range requiredKeys {
		if v := gjson.GetBytes(data, key); !v.Exists() || v.Type == gjson.Null {
			return Portfolio{}, fmt.Errorf("%w: missing %s", ErrCorrupt, key)
		}
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		return Portfolio{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return p, nil
}

func encode(p Portfolio) ([]byte, error) {
	p.normalize()
	data, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal portfolio: %w", err)
	}
	return append(data, '\n'), nil
}
