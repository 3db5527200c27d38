package template

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dario.cat/mergo"

	"github.com/codemode/codemode/pkg/logger"
)

var (
	ErrNotFound    = errors.New("template not found")
	ErrDuplicateID = errors.New("template already exists")
)

// ValidationFailedError carries the structured findings that blocked a
// register or update.
type ValidationFailedError struct {
	Result *ValidationResult
}

func (e *ValidationFailedError) Error() string {
	messages := make([]string, 0, len(e.Result.Errors))
	for _, err := range e.Result.Errors {
		messages = append(messages, err.Message)
	}
	return "template validation failed: " + strings.Join(messages, ", ")
}

// Catalog is the in-memory template index. All mutations run the validator
// first; an entry that fails validation is never stored. The catalog is
// explicitly constructed and injected, never a process-wide singleton.
type Catalog struct {
	mu          sync.RWMutex
	templates   map[string]*Template
	store       Store
	validator   *Validator
	initialized bool
}

func NewCatalog(store Store, validator *Validator) *Catalog {
	if validator == nil {
		validator = NewValidator()
	}
	return &Catalog{
		templates: make(map[string]*Template),
		store:     store,
		validator: validator,
	}
}

// Initialize loads every template from the backing store once. Subsequent
// calls are no-ops until Reload.
func (c *Catalog) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return nil
	}
	log := logger.FromContext(ctx)
	templates, err := c.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}
	for _, tpl := range templates {
		c.templates[tpl.ID] = tpl
	}
	c.initialized = true
	log.Info("template catalog initialized", "count", len(c.templates))
	return nil
}

// Reload clears the index and loads it again from the store.
func (c *Catalog) Reload(ctx context.Context) error {
	c.mu.Lock()
	c.templates = make(map[string]*Template)
	c.initialized = false
	c.mu.Unlock()
	return c.Initialize(ctx)
}

// List returns metadata projections matching the filters, ranked by
// weighted usage/rating score and paginated.
func (c *Catalog) List(ctx context.Context, filters *Filters, limit, offset int) (*Page, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	c.mu.RLock()
	matched := make([]*Template, 0, len(c.templates))
	for _, tpl := range c.templates {
		if matchesFilters(tpl, filters) {
			matched = append(matched, tpl)
		}
	}
	c.mu.RUnlock()

	// Deterministic tie order: pre-sort by id, then stable-sort by score.
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	sort.SliceStable(matched, func(i, j int) bool { return rankScore(matched[i]) > rankScore(matched[j]) })

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	items := make([]Metadata, 0, end-offset)
	for _, tpl := range matched[offset:end] {
		items = append(items, tpl.toMetadata())
	}
	return &Page{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// Search is a convenience wrapper over List with a free-text filter.
func (c *Catalog) Search(ctx context.Context, query string, limit int) ([]Metadata, error) {
	page, err := c.List(ctx, &Filters{Search: query}, limit, 0)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func rankScore(tpl *Template) float64 {
	return float64(tpl.UsageCount)*0.7 + tpl.Rating*0.3
}

func matchesFilters(tpl *Template, filters *Filters) bool {
	if filters == nil {
		return true
	}
	if filters.Category != "" && tpl.Category != filters.Category {
		return false
	}
	if filters.TriggerType != "" && !tpl.SupportsTrigger(filters.TriggerType) {
		return false
	}
	if filters.MCPServer != "" && !contains(tpl.MCPServers, filters.MCPServer) {
		return false
	}
	if filters.Difficulty != "" && tpl.Difficulty != filters.Difficulty {
		return false
	}
	if filters.Search != "" {
		needle := strings.ToLower(filters.Search)
		if !strings.Contains(strings.ToLower(tpl.Name), needle) &&
			!strings.Contains(strings.ToLower(tpl.Description), needle) &&
			!tagMatches(tpl.Tags, needle) {
			return false
		}
	}
	return true
}

func tagMatches(tags []string, needle string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// Get returns the full template, code body included.
func (c *Catalog) Get(ctx context.Context, id string) (*Template, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	tpl, ok := c.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tpl, nil
}

// Register validates and stores a new template. The catalog is untouched
// on any validation error or duplicate id.
func (c *Catalog) Register(ctx context.Context, tpl *Template) (string, error) {
	if err := c.Initialize(ctx); err != nil {
		return "", err
	}
	if result := c.validator.Validate(tpl); !result.Valid {
		return "", &ValidationFailedError{Result: result}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.templates[tpl.ID]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, tpl.ID)
	}
	now := time.Now()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now
	c.templates[tpl.ID] = tpl
	logger.FromContext(ctx).Info("registered template", "template_id", tpl.ID)
	return tpl.ID, nil
}

// Update merges a partial template over the existing entry (zero fields
// leave the original value; the id is immutable), re-validates the merged
// result and stores it only when valid.
func (c *Catalog) Update(ctx context.Context, id string, partial *Template) error {
	existing, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	merged := *existing
	if err := mergo.Merge(&merged, partial, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge template update: %w", err)
	}
	merged.ID = existing.ID
	merged.UpdatedAt = time.Now()
	if result := c.validator.Validate(&merged); !result.Valid {
		return &ValidationFailedError{Result: result}
	}
	c.mu.Lock()
	c.templates[id] = &merged
	c.mu.Unlock()
	logger.FromContext(ctx).Info("updated template", "template_id", id)
	return nil
}

// Delete removes the entry from the active index. The backing store is not
// touched; a Reload resurrects the entry if it is still present on disk.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.Initialize(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.templates[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(c.templates, id)
	logger.FromContext(ctx).Info("deleted template", "template_id", id)
	return nil
}

// CountByCategory returns how many templates each category holds.
func (c *Catalog) CountByCategory(ctx context.Context) (map[Category]int, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[Category]int)
	for _, tpl := range c.templates {
		counts[tpl.Category]++
	}
	return counts, nil
}
