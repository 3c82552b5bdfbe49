package ai

import (
	_ "embed"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// ArtifactExt is appended to the identifier when a catalog entry names no
// artifact file.
const ArtifactExt = ".leafnet"

//go:embed catalog.yaml
var defaultCatalog []byte

// ModelEntry describes one classifier known to the service.
type ModelEntry struct {
	ID       string   `yaml:"id" json:"id"`
	Artifact string   `yaml:"artifact" json:"artifact"`
	Labels   []string `yaml:"labels" json:"labels"`
}

// Catalog maps model identifiers to their artifact and label list. It is
// read-only after construction.
type Catalog struct {
	entries []ModelEntry
	byID    map[string]int
}

type catalogFile struct {
	Models []ModelEntry `yaml:"models"`
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog YAML file, or the compiled-in catalog when
// path is empty.
func LoadCatalog(file string) (*Catalog, error) {
	if file == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}
	return NewCatalog(file.Models)
}

// NewCatalog validates entries and fills in default artifact names.
func NewCatalog(entries []ModelEntry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("model catalog is empty")
	}

	c := &Catalog{
		entries: make([]ModelEntry, 0, len(entries)),
		byID:    make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, fmt.Errorf("model catalog entry %d has no id", i)
		}
		if _, dup := c.byID[e.ID]; dup {
			return nil, fmt.Errorf("model catalog has duplicate id %q", e.ID)
		}
		if len(e.Labels) == 0 {
			return nil, fmt.Errorf("model %q has no labels", e.ID)
		}
		if e.Artifact == "" {
			e.Artifact = e.ID + ArtifactExt
		}
		// Artifacts are looked up inside the model directory only.
		if e.Artifact != path.Base(e.Artifact) || e.Artifact == "." || e.Artifact == ".." {
			return nil, fmt.Errorf("model %q artifact %q must be a plain file name", e.ID, e.Artifact)
		}

		e.Labels = append([]string(nil), e.Labels...)
		c.byID[e.ID] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// Lookup returns the entry for id.
func (c *Catalog) Lookup(id string) (ModelEntry, bool) {
	i, ok := c.byID[id]
	if !ok {
		return ModelEntry{}, false
	}
	return c.entries[i], true
}

// IDs lists the identifiers in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.entries))
	for i, e := range c.entries {
		ids[i] = e.ID
	}
	return ids
}

// Entries returns a copy of all catalog entries.
func (c *Catalog) Entries() []ModelEntry {
	return append([]ModelEntry(nil), c.entries...)
}

// ByArtifact finds the identifier whose artifact has the given file name.
func (c *Catalog) ByArtifact(name string) (string, bool) {
	for _, e := range c.entries {
		if e.Artifact == name {
			return e.ID, true
		}
	}
	return "", false
}
