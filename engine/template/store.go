package template

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"

	"github.com/codemode/codemode/pkg/logger"
)

// Store is the persistence boundary the catalog loads from. Persistence of
// catalog mutations is a caller concern; the store is read-only here.
type Store interface {
	// LoadAll enumerates every template in the backing store. Individual
	// malformed entries are skipped and logged, not fatal.
	LoadAll(ctx context.Context) ([]*Template, error)
}

const (
	metadataJSONFile = "metadata.json"
	metadataYAMLFile = "metadata.yaml"
	codeFile         = "template.ts"
	readmeFile       = "README.md"
)

// FSStore reads templates from a directory tree laid out as
// <root>/<category>/<template-id>/{metadata.json|metadata.yaml, template.ts,
// README.md}.
type FSStore struct {
	fs   afero.Fs
	root string
}

func NewFSStore(fs afero.Fs, root string) *FSStore {
	return &FSStore{fs: fs, root: root}
}

func (s *FSStore) LoadAll(ctx context.Context) ([]*Template, error) {
	log := logger.FromContext(ctx)
	categories, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read template root %s: %w", s.root, err)
	}
	var templates []*Template
	for _, category := range categories {
		if !category.IsDir() {
			continue
		}
		categoryPath := filepath.Join(s.root, category.Name())
		entries, err := afero.ReadDir(s.fs, categoryPath)
		if err != nil {
			log.Error("failed to read category directory", "path", categoryPath, "error", err)
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			templatePath := filepath.Join(categoryPath, entry.Name())
			tpl, err := s.loadOne(templatePath, category.Name())
			if err != nil {
				log.Error("skipping malformed template", "path", templatePath, "error", err)
				continue
			}
			templates = append(templates, tpl)
		}
	}
	return templates, nil
}

func (s *FSStore) loadOne(dir, category string) (*Template, error) {
	tpl, err := s.readMetadata(dir)
	if err != nil {
		return nil, err
	}
	code, err := afero.ReadFile(s.fs, filepath.Join(dir, codeFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read template code: %w", err)
	}
	tpl.Code = string(code)
	// README is optional.
	if readme, err := afero.ReadFile(s.fs, filepath.Join(dir, readmeFile)); err == nil {
		tpl.LongDescription = string(readme)
	}
	s.applyDefaults(tpl, category)
	return tpl, nil
}

func (s *FSStore) readMetadata(dir string) (*Template, error) {
	tpl := &Template{}
	if raw, err := afero.ReadFile(s.fs, filepath.Join(dir, metadataJSONFile)); err == nil {
		if err := json.Unmarshal(raw, tpl); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", metadataJSONFile, err)
		}
		return tpl, nil
	}
	raw, err := afero.ReadFile(s.fs, filepath.Join(dir, metadataYAMLFile))
	if err != nil {
		return nil, fmt.Errorf("missing template metadata in %s: %w", dir, err)
	}
	if err := yaml.Unmarshal(raw, tpl); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", metadataYAMLFile, err)
	}
	return tpl, nil
}

func (s *FSStore) applyDefaults(tpl *Template, category string) {
	if tpl.Version == "" {
		tpl.Version = "1.0.0"
	}
	if tpl.Category == "" {
		tpl.Category = Category(category)
	}
	if tpl.Difficulty == "" {
		tpl.Difficulty = DifficultyIntermediate
	}
	if len(tpl.TriggerTypes) == 0 {
		tpl.TriggerTypes = []TriggerType{TriggerCron}
	}
	if tpl.ConfigSchema.Type == "" {
		tpl.ConfigSchema = EmptySchema()
	}
	if tpl.ConfigSchema.Properties == nil {
		tpl.ConfigSchema.Properties = map[string]ConfigProperty{}
	}
	if tpl.DefaultConfig == nil {
		tpl.DefaultConfig = map[string]any{}
	}
	if tpl.Visibility == "" {
		tpl.Visibility = VisibilityPublic
	}
	now := time.Now()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	if tpl.UpdatedAt.IsZero() {
		tpl.UpdatedAt = now
	}
}
