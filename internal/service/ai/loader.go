package ai

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"leafscan/internal/dto"
	"leafscan/internal/logger"
)

// Loader resolves model identifiers to prepared models. Loaded models are
// cached; cached models are immutable and shared without locking.
type Loader struct {
	catalog *Catalog
	fsys    fs.FS
	logger  *logger.Logger

	models   map[string]*Model
	modelsMu sync.RWMutex
	// Evict bumps evictions[id], Purge bumps purges. A read that overlaps
	// either is returned but not cached.
	evictions map[string]uint64
	purges    uint64
	// loadMu serializes cache misses so an artifact is decoded once.
	loadMu sync.Mutex
}

// NewLoader creates a loader reading artifacts from fsys, usually
// os.DirFS(cfg.ModelDirectory).
func NewLoader(catalog *Catalog, fsys fs.FS, logger *logger.Logger) *Loader {
	return &Loader{
		catalog: catalog,
		fsys:    fsys,
		logger:  logger,
		models:    make(map[string]*Model),
		evictions: make(map[string]uint64),
	}
}

// Catalog returns the catalog the loader resolves against.
func (l *Loader) Catalog() *Catalog {
	return l.catalog
}

// Load returns the model for id, reading its artifact on first use.
func (l *Loader) Load(id string) (*Model, error) {
	entry, ok := l.catalog.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}

	if m := l.cached(id); m != nil {
		return m, nil
	}

	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	// Double check after acquiring the lock
	if m := l.cached(id); m != nil {
		return m, nil
	}

	gen := l.generation(id)
	m, err := l.read(entry)
	if err != nil {
		return nil, err
	}

	l.modelsMu.Lock()
	stale := l.evictions[id]+l.purges != gen
	if !stale {
		l.models[id] = m
	}
	l.modelsMu.Unlock()

	if stale {
		l.logger.Info("Model %s changed while loading, not caching it", id)
		return m, nil
	}

	l.logger.Info("Loaded model %s from %s (%d layers, %d classes)", id, entry.Artifact, len(m.layers), m.numClasses)
	if m.numClasses != len(entry.Labels) {
		l.logger.Warning("Model %s has %d outputs but %d labels", id, m.numClasses, len(entry.Labels))
	}
	return m, nil
}

func (l *Loader) read(entry ModelEntry) (*Model, error) {
	f, err := l.fsys.Open(entry.Artifact)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q (%s)", ErrModelNotFound, entry.ID, entry.Artifact)
		}
		return nil, fmt.Errorf("%w: %q: %w", ErrModelLoad, entry.ID, err)
	}
	defer f.Close()

	net, err := DecodeArtifact(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrModelLoad, entry.ID, err)
	}
	m, err := NewModel(entry.ID, entry.Labels, net)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrModelLoad, entry.ID, err)
	}
	return m, nil
}

func (l *Loader) generation(id string) uint64 {
	l.modelsMu.RLock()
	defer l.modelsMu.RUnlock()
	return l.evictions[id] + l.purges
}

func (l *Loader) cached(id string) *Model {
	l.modelsMu.RLock()
	defer l.modelsMu.RUnlock()
	return l.models[id]
}

// Stat returns file information for the artifact of id.
func (l *Loader) Stat(id string) (fs.FileInfo, error) {
	entry, ok := l.catalog.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	info, err := fs.Stat(l.fsys, entry.Artifact)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q (%s)", ErrModelNotFound, id, entry.Artifact)
	}
	return info, err
}

// Evict drops id from the cache. The next Load reads the artifact again.
func (l *Loader) Evict(id string) bool {
	l.modelsMu.Lock()
	defer l.modelsMu.Unlock()

	_, ok := l.models[id]
	delete(l.models, id)
	l.evictions[id]++
	return ok
}

// Purge empties the cache and returns how many models were dropped.
func (l *Loader) Purge() int {
	l.modelsMu.Lock()
	defer l.modelsMu.Unlock()

	n := len(l.models)
	l.models = make(map[string]*Model)
	l.purges++
	return n
}

// Info describes id without loading it. Network details are filled in only
// when the model is already cached.
func (l *Loader) Info(id string) (dto.ModelInfo, error) {
	entry, ok := l.catalog.Lookup(id)
	if !ok {
		return dto.ModelInfo{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}

	info := dto.ModelInfo{
		ID:       entry.ID,
		Artifact: entry.Artifact,
		Labels:   entry.Labels,
	}

	if fi, err := fs.Stat(l.fsys, entry.Artifact); err == nil {
		modified := fi.ModTime().UTC()
		info.Available = true
		info.Size = fi.Size()
		info.SizeText = dto.FormatFileSize(fi.Size())
		info.ModifiedAt = &modified
	} else if !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warning("Failed to stat artifact of %s: %v", id, err)
	}

	if m := l.cached(id); m != nil {
		h, w := m.InputSize()
		info.Cached = true
		info.InputSize = []int{h, w}
		info.NumClasses = m.NumClasses()
		info.SaliencyLayer = m.SaliencyLayer()
		for _, li := range m.Layers() {
			info.Layers = append(info.Layers, dto.Layer{Name: li.Name, Kind: string(li.Kind), OutputShape: li.OutputShape})
		}
	}
	return info, nil
}
