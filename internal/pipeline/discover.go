package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"corpusnorm/internal/config"
	"corpusnorm/internal/reader"
)

// Discovery errors. Both abort the whole run.
var (
	ErrSourceDirMissing = errors.New("source directory does not exist")
	ErrNotADirectory    = errors.New("source path is not a directory")
)

// Source is one source collection: a mapping and the files it applies to.
type Source struct {
	Config config.SourceConfig
	// Files are slash-separated paths relative to the source directory, in lexical order.
	Files []string
}

// Name returns the source name.
func (s Source) Name() string {
	return s.Config.Name
}

// Discover lists the supported files under dir and groups them into sources.
// Files matching a configured source join it; any other file becomes its own
// source, named after the file stem, with the identity mapping. Configured
// sources come first in configuration order, then unmatched ones by first file.
func Discover(dir string, cfg *config.Config) ([]Source, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceDirMissing, dir)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to stat source directory: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}

	var files []string

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() || !reader.IsSupported(path) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		files = append(files, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan source directory: %w", err)
	}

	return group(files, cfg), nil
}

func group(files []string, cfg *config.Config) []Source {
	configured := make([]Source, len(cfg.Sources))
	for i, src := range cfg.Sources {
		configured[i] = Source{Config: src}
	}

	taken := make(map[string]bool, len(cfg.Sources))
	for _, src := range cfg.Sources {
		taken[src.Name] = true
	}

	var (
		unmatched []Source
		byName    = make(map[string]int)
		byStem    = make(map[string]string)
	)

	for _, file := range files {
		if i := matchSource(cfg.Sources, file); i >= 0 {
			configured[i].Files = append(configured[i].Files, file)
			continue
		}

		stem := fileStem(file)

		name, ok := byStem[stem]
		if !ok {
			name = identityName(stem, taken)
			taken[name] = true
			byStem[stem] = name
		}

		if i, ok := byName[name]; ok {
			unmatched[i].Files = append(unmatched[i].Files, file)
			continue
		}

		byName[name] = len(unmatched)
		unmatched = append(unmatched, Source{
			Config: config.IdentitySource(name, file),
			Files:  []string{file},
		})
	}

	var sources []Source

	for _, src := range configured {
		if len(src.Files) > 0 {
			sources = append(sources, src)
		}
	}

	return append(sources, unmatched...)
}

func matchSource(sources []config.SourceConfig, file string) int {
	for i := range sources {
		if sources[i].Matches(file) {
			return i
		}
	}

	return -1
}

func fileStem(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// identityName derives a source name from a file stem that is not taken, not
// reserved for the run's own outputs and safe to use as a file name.
func identityName(stem string, taken map[string]bool) string {
	free := func(name string) bool {
		return !taken[name] && config.CheckSourceName(name) == nil
	}

	if free(stem) {
		return stem
	}

	if config.CheckSourceName(stem) != nil && !config.IsReservedSourceName(stem) {
		stem = strings.NewReplacer(`\`, "_", "/", "_").Replace(stem)
	}

	name := stem + "-unmapped"
	for n := 2; !free(name); n++ {
		name = stem + "-unmapped-" + strconv.Itoa(n)
	}

	return name
}
