package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/wangchj/inflight-sub000/internal/environment"
	"github.com/wangchj/inflight-sub000/internal/migrations"
	"github.com/wangchj/inflight-sub000/internal/project"
	"github.com/wangchj/inflight-sub000/internal/storage"
	"github.com/wangchj/inflight-sub000/internal/types"
)

// ErrVariantMismatch is returned when a variant is selected for a dimension
// that does not own it
var ErrVariantMismatch = errors.New("variant does not belong to dimension")

// Manager owns the Project and Workspace documents of one project id. Every
// change to the selection or the variants recomposes the variable store and
// schedules the changed documents for saving.
type Manager struct {
	id     string
	store  *environment.Store
	saver  *storage.Autosaver
	logger *slog.Logger

	mu        sync.RWMutex
	project   *types.Project
	workspace *types.Workspace
}

// Open loads (upgrading if needed) or creates the documents stored under id
// and composes the initial variables into store
func Open(ctx context.Context, repo storage.Repository, saver *storage.Autosaver, store *environment.Store, id string, logger *slog.Logger) (*Manager, error) {
	m := &Manager{
		id:     id,
		store:  store,
		saver:  saver,
		logger: logger,
	}

	if err := m.loadProject(ctx, repo); err != nil {
		return nil, err
	}
	if err := m.loadWorkspace(ctx, repo); err != nil {
		return nil, err
	}

	m.store.Compose(m.project, m.workspace.SelectedVariants)
	return m, nil
}

func (m *Manager) loadProject(ctx context.Context, repo storage.Repository) error {
	data, err := repo.LoadDocument(ctx, storage.KindProject, m.id)
	if errors.Is(err, storage.ErrNotFound) {
		m.logger.Info("creating project", slog.String("id", m.id))
		m.project = project.NewProject()
		return m.scheduleProject()
	}
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	p, migrated, err := migrations.UpgradeProject(data)
	if err != nil {
		return fmt.Errorf("failed to upgrade project: %w", err)
	}
	m.project = p
	if migrated {
		m.logger.Info("upgraded project document", slog.String("id", m.id), slog.Int("version", p.Version))
		return m.scheduleProject()
	}
	return nil
}

func (m *Manager) loadWorkspace(ctx context.Context, repo storage.Repository) error {
	data, err := repo.LoadDocument(ctx, storage.KindWorkspace, m.id)
	if errors.Is(err, storage.ErrNotFound) {
		m.workspace = &types.Workspace{
			Version:          types.WorkspaceVersion,
			OpenedResources:  []types.OpenedResource{},
			SelectedVariants: types.Selection{},
		}
		return m.scheduleWorkspace()
	}
	if err != nil {
		return fmt.Errorf("failed to load workspace: %w", err)
	}

	w, migrated, err := migrations.UpgradeWorkspace(data)
	if err != nil {
		return fmt.Errorf("failed to upgrade workspace: %w", err)
	}
	m.workspace = w
	if migrated {
		m.logger.Info("upgraded workspace document", slog.String("id", m.id), slog.Int("version", w.Version))
		return m.scheduleWorkspace()
	}
	return nil
}

// Store returns the variable store fed by this session
func (m *Manager) Store() *environment.Store {
	return m.store
}

// Project returns a deep copy of the project
func (m *Manager) Project() *types.Project {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneProject(m.project)
}

// Selection returns the current variant selection
func (m *Manager) Selection() types.Selection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workspace.SelectedVariants.Clone()
}

// SelectVariant selects variantID for dimensionID and recomposes
func (m *Manager) SelectVariant(dimensionID, variantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.project.Dimensions[dimensionID]; !ok {
		return fmt.Errorf("dimension %s: %w", dimensionID, project.ErrNotFound)
	}
	if owner, ok := project.DimensionOf(m.project, variantID); !ok || owner != dimensionID {
		return fmt.Errorf("variant %s, dimension %s: %w", variantID, dimensionID, ErrVariantMismatch)
	}

	m.workspace.SelectedVariants = m.workspace.SelectedVariants.Set(dimensionID, variantID)
	m.store.Compose(m.project, m.workspace.SelectedVariants)
	return m.scheduleWorkspace()
}

// ClearVariant removes the selection of dimensionID and recomposes
func (m *Manager) ClearVariant(dimensionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workspace.SelectedVariants.Get(dimensionID); !ok {
		return nil
	}
	m.workspace.SelectedVariants = m.workspace.SelectedVariants.Delete(dimensionID)
	m.store.Compose(m.project, m.workspace.SelectedVariants)
	return m.scheduleWorkspace()
}

// Update applies fn to the project. On success the variables are recomposed
// and the project is scheduled for saving; on error nothing changes.
func (m *Manager) Update(fn func(p *types.Project) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	draft := cloneProject(m.project)
	if err := fn(draft); err != nil {
		return err
	}

	m.project = draft
	m.store.Compose(m.project, m.workspace.SelectedVariants)
	return m.scheduleProject()
}

// ResolveSelection finds a dimension and one of its variants by id or by
// case-insensitive name
func (m *Manager) ResolveSelection(dimension, variant string) (dimensionID, variantID string, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dimensionID, ok := findByName(m.project.Dimensions, dimension, func(d types.Dimension) string { return d.Name })
	if !ok {
		return "", "", fmt.Errorf("dimension %q: %w", dimension, project.ErrNotFound)
	}

	owned := make(map[string]types.Variant)
	for _, id := range m.project.Dimensions[dimensionID].Variants {
		if v, ok := m.project.Variants[id]; ok {
			owned[id] = v
		}
	}
	variantID, ok = findByName(owned, variant, func(v types.Variant) string { return v.Name })
	if !ok {
		return "", "", fmt.Errorf("variant %q of dimension %q: %w", variant, dimension, project.ErrNotFound)
	}
	return dimensionID, variantID, nil
}

// ComposeWith returns the variables the project would produce with the
// current selection amended by extra. The store is not changed.
func (m *Manager) ComposeWith(extra types.Selection) environment.VarMap {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sel := m.workspace.SelectedVariants
	for _, e := range extra {
		sel = sel.Set(e.DimensionID, e.VariantID)
	}
	return environment.Combine(m.project, sel)
}

// Flush writes pending documents
func (m *Manager) Flush(ctx context.Context) error {
	return m.saver.Flush(ctx)
}

// scheduleProject expects m.mu to be held
func (m *Manager) scheduleProject() error {
	data, err := json.Marshal(m.project)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	m.saver.Schedule(storage.KindProject, m.id, data)
	return nil
}

// scheduleWorkspace expects m.mu to be held
func (m *Manager) scheduleWorkspace() error {
	data, err := json.Marshal(m.workspace)
	if err != nil {
		return fmt.Errorf("failed to marshal workspace: %w", err)
	}
	m.saver.Schedule(storage.KindWorkspace, m.id, data)
	return nil
}

func findByName[T any](items map[string]T, query string, name func(T) string) (string, bool) {
	if _, ok := items[query]; ok {
		return query, true
	}
	for id, item := range items {
		if strings.EqualFold(name(item), query) {
			return id, true
		}
	}
	return "", false
}

func cloneProject(p *types.Project) *types.Project {
	data, err := json.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("project is not serializable: %v", err))
	}
	var out types.Project
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("project does not round trip: %v", err))
	}
	return &out
}
