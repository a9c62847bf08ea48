// Package metadata records and verifies the SHA-256 manifest of an output directory.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// FileName is the manifest file written next to the emitted files.
const FileName = "manifest.json"

// Manifest verification errors.
var (
	ErrNoManifest   = errors.New("no manifest found")
	ErrNoHashFound  = errors.New("no hash found in manifest entry")
	ErrHashMismatch = errors.New("hash mismatch")
	ErrUnsafePath   = errors.New("manifest entry escapes the output directory")
)

// Entry describes one emitted file.
type Entry struct {
	Name    string `json:"name"`
	Source  string `json:"source,omitempty"`
	Format  string `json:"format,omitempty"`
	Records int    `json:"records"`
	Bytes   int64  `json:"bytes"`
	Hash    string `json:"sha256"`
}

// Manifest lists every file of one run.
type Manifest struct {
	RunID      string    `json:"run_id"`
	LastModify time.Time `json:"last_modify"`
	Validation bool      `json:"validation"`
	Files      []Entry   `json:"files"`
}

// New creates an empty manifest for a run.
func New(runID string) *Manifest {
	return &Manifest{RunID: runID, Files: []Entry{}}
}

// CalculateHash computes the hex SHA-256 of everything read from r.
func CalculateHash(r io.Reader) (string, int64, error) {
	h := sha256.New()

	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashFile computes the hex SHA-256 of a file.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	return CalculateHash(f)
}

// Sign hashes a file under dir and adds or replaces its entry.
func (m *Manifest) Sign(dir, name, source, format string, records int) error {
	hash, size, err := HashFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", name, err)
	}

	entry := Entry{Name: name, Source: source, Format: format, Records: records, Bytes: size, Hash: hash}

	if i := slices.IndexFunc(m.Files, func(e Entry) bool { return e.Name == name }); i >= 0 {
		m.Files[i] = entry
	} else {
		m.Files = append(m.Files, entry)
	}

	return nil
}

// Save writes the manifest to dir/FileName with entries sorted by name.
func (m *Manifest) Save(dir string, validated bool) error {
	m.Validation = validated
	m.LastModify = time.Now().UTC()

	slices.SortFunc(m.Files, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, FileName), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

// Load reads dir/FileName.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrNoManifest, dir)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	return &m, nil
}

// Verify checks every file listed in the manifest of dir. All problems are
// returned joined; the bool is true only when every file matches.
func Verify(dir string) (bool, error) {
	m, err := Load(dir)
	if err != nil {
		return false, err
	}

	var errs []error

	for _, e := range m.Files {
		if !filepath.IsLocal(e.Name) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnsafePath, e.Name))
			continue
		}

		if e.Hash == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoHashFound, e.Name))
			continue
		}

		calculated, _, err := HashFile(filepath.Join(dir, e.Name))
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to hash %s: %w", e.Name, err))
			continue
		}

		if calculated != e.Hash {
			errs = append(errs, fmt.Errorf("%w: %s: expected %s, got %s", ErrHashMismatch, e.Name, e.Hash, calculated))
		}
	}

	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}

	return true, nil
}
