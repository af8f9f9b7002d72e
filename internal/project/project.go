// Package project edits the folder/request arena and the variable scopes of
// a Project document. Children are stored only on their parent; parents are
// found by lookup.
package project

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/wangchj/inflight-sub000/internal/types"
)

var (
	// ErrNotFound is returned when an id does not exist in the project
	ErrNotFound = errors.New("not found")
	// ErrCycle is returned when a folder would become its own descendant
	ErrCycle = errors.New("folder cannot be moved into its own subtree")
	// ErrRoot is returned for operations that cannot apply to the root folder
	ErrRoot = errors.New("operation not allowed on the root folder")
)

// NewID returns a fresh document id
func NewID() string {
	return uuid.NewString()
}

// NewProject returns an empty project with a root folder
func NewProject() *types.Project {
	root := NewID()
	return &types.Project{
		Version: types.ProjectVersion,
		Tree:    root,
		Folders: map[string]types.Folder{
			root: {Name: "Root", Folders: []string{}, Requests: []string{}},
		},
		Requests:   map[string]types.Request{},
		Dimensions: map[string]types.Dimension{},
		DimOrder:   []string{},
		Variants:   map[string]types.Variant{},
	}
}

// AddFolder creates a folder under parentID
func AddFolder(p *types.Project, parentID, name string) (string, error) {
	parent, ok := p.Folders[parentID]
	if !ok {
		return "", fmt.Errorf("folder %s: %w", parentID, ErrNotFound)
	}

	id := NewID()
	p.Folders[id] = types.Folder{Name: name, Folders: []string{}, Requests: []string{}}
	parent.Folders = append(slices.Clone(parent.Folders), id)
	p.Folders[parentID] = parent
	return id, nil
}

// AddRequest stores req under folderID
func AddRequest(p *types.Project, folderID string, req types.Request) (string, error) {
	folder, ok := p.Folders[folderID]
	if !ok {
		return "", fmt.Errorf("folder %s: %w", folderID, ErrNotFound)
	}
	if req.Auth.Scheme == nil {
		req.Auth = types.Auth{Scheme: types.NoAuth{}}
	}

	id := NewID()
	if p.Requests == nil {
		p.Requests = map[string]types.Request{}
	}
	p.Requests[id] = req
	folder.Requests = append(slices.Clone(folder.Requests), id)
	p.Folders[folderID] = folder
	return id, nil
}

// UpdateRequest replaces the stored request id
func UpdateRequest(p *types.Project, id string, req types.Request) error {
	if _, ok := p.Requests[id]; !ok {
		return fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	p.Requests[id] = req
	return nil
}

// AddDimension appends a new dimension to DimOrder
func AddDimension(p *types.Project, name string) string {
	id := NewID()
	if p.Dimensions == nil {
		p.Dimensions = map[string]types.Dimension{}
	}
	p.Dimensions[id] = types.Dimension{Name: name, Variants: []string{}}
	p.DimOrder = append(slices.Clone(p.DimOrder), id)
	return id
}

// AddVariant creates a variant of dimensionID
func AddVariant(p *types.Project, dimensionID, name string, vars []types.Var) (string, error) {
	dim, ok := p.Dimensions[dimensionID]
	if !ok {
		return "", fmt.Errorf("dimension %s: %w", dimensionID, ErrNotFound)
	}

	id := NewID()
	if p.Variants == nil {
		p.Variants = map[string]types.Variant{}
	}
	if vars == nil {
		vars = []types.Var{}
	}
	p.Variants[id] = types.Variant{Name: name, Vars: slices.Clone(vars)}
	dim.Variants = append(slices.Clone(dim.Variants), id)
	p.Dimensions[dimensionID] = dim
	return id, nil
}

// SetVar binds name in a variant, replacing every existing binding of it
func SetVar(p *types.Project, variantID, name, value string) error {
	variant, ok := p.Variants[variantID]
	if !ok {
		return fmt.Errorf("variant %s: %w", variantID, ErrNotFound)
	}

	vars := make([]types.Var, 0, len(variant.Vars)+1)
	replaced := false
	for _, v := range variant.Vars {
		if v.Name != name {
			vars = append(vars, v)
			continue
		}
		if !replaced {
			vars = append(vars, types.Var{Name: name, Value: value})
			replaced = true
		}
	}
	if !replaced {
		vars = append(vars, types.Var{Name: name, Value: value})
	}
	variant.Vars = vars
	p.Variants[variantID] = variant
	return nil
}

// DimensionOf returns the dimension owning variantID
func DimensionOf(p *types.Project, variantID string) (string, bool) {
	for _, dimID := range p.DimOrder {
		if slices.Contains(p.Dimensions[dimID].Variants, variantID) {
			return dimID, true
		}
	}
	// Dimensions missing from DimOrder
	for dimID, dim := range p.Dimensions {
		if slices.Contains(dim.Variants, variantID) {
			return dimID, true
		}
	}
	return "", false
}

// ParentOf returns the folder that lists id as a child folder or request
func ParentOf(p *types.Project, id string) (string, bool) {
	for folderID, folder := range p.Folders {
		if slices.Contains(folder.Folders, id) || slices.Contains(folder.Requests, id) {
			return folderID, true
		}
	}
	return "", false
}

// IsDescendant reports whether folderID is ancestorID or lies below it
func IsDescendant(p *types.Project, folderID, ancestorID string) bool {
	if folderID == ancestorID {
		return true
	}
	for _, child := range p.Folders[ancestorID].Folders {
		if IsDescendant(p, folderID, child) {
			return true
		}
	}
	return false
}

// MoveFolder re-parents folderID under newParentID
func MoveFolder(p *types.Project, folderID, newParentID string) error {
	if folderID == p.Tree {
		return ErrRoot
	}
	if _, ok := p.Folders[folderID]; !ok {
		return fmt.Errorf("folder %s: %w", folderID, ErrNotFound)
	}
	newParent, ok := p.Folders[newParentID]
	if !ok {
		return fmt.Errorf("folder %s: %w", newParentID, ErrNotFound)
	}
	if IsDescendant(p, newParentID, folderID) {
		return ErrCycle
	}

	oldParentID, ok := ParentOf(p, folderID)
	if !ok {
		return fmt.Errorf("parent of folder %s: %w", folderID, ErrNotFound)
	}
	if oldParentID == newParentID {
		return nil
	}

	oldParent := p.Folders[oldParentID]
	oldParent.Folders = without(oldParent.Folders, folderID)
	p.Folders[oldParentID] = oldParent

	newParent.Folders = append(slices.Clone(newParent.Folders), folderID)
	p.Folders[newParentID] = newParent
	return nil
}

// MoveRequest re-parents requestID under folderID
func MoveRequest(p *types.Project, requestID, folderID string) error {
	if _, ok := p.Requests[requestID]; !ok {
		return fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	target, ok := p.Folders[folderID]
	if !ok {
		return fmt.Errorf("folder %s: %w", folderID, ErrNotFound)
	}

	if oldParentID, ok := ParentOf(p, requestID); ok {
		if oldParentID == folderID {
			return nil
		}
		oldParent := p.Folders[oldParentID]
		oldParent.Requests = without(oldParent.Requests, requestID)
		p.Folders[oldParentID] = oldParent
	}

	target.Requests = append(slices.Clone(target.Requests), requestID)
	p.Folders[folderID] = target
	return nil
}

// RemoveRequest deletes a request and its tree entry
func RemoveRequest(p *types.Project, requestID string) error {
	if _, ok := p.Requests[requestID]; !ok {
		return fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	if parentID, ok := ParentOf(p, requestID); ok {
		parent := p.Folders[parentID]
		parent.Requests = without(parent.Requests, requestID)
		p.Folders[parentID] = parent
	}
	delete(p.Requests, requestID)
	return nil
}

// RemoveFolder deletes a folder with everything below it
func RemoveFolder(p *types.Project, folderID string) error {
	if folderID == p.Tree {
		return ErrRoot
	}
	if _, ok := p.Folders[folderID]; !ok {
		return fmt.Errorf("folder %s: %w", folderID, ErrNotFound)
	}

	if parentID, ok := ParentOf(p, folderID); ok {
		parent := p.Folders[parentID]
		parent.Folders = without(parent.Folders, folderID)
		p.Folders[parentID] = parent
	}
	removeSubtree(p, folderID)
	return nil
}

func removeSubtree(p *types.Project, folderID string) {
	folder := p.Folders[folderID]
	for _, child := range folder.Folders {
		removeSubtree(p, child)
	}
	for _, req := range folder.Requests {
		delete(p.Requests, req)
	}
	delete(p.Folders, folderID)
}

// RemoveVariant deletes a variant and drops it from its dimension
func RemoveVariant(p *types.Project, variantID string) error {
	if _, ok := p.Variants[variantID]; !ok {
		return fmt.Errorf("variant %s: %w", variantID, ErrNotFound)
	}
	if dimID, ok := DimensionOf(p, variantID); ok {
		dim := p.Dimensions[dimID]
		dim.Variants = without(dim.Variants, variantID)
		p.Dimensions[dimID] = dim
	}
	delete(p.Variants, variantID)
	return nil
}

// RemoveDimension deletes a dimension with its variants
func RemoveDimension(p *types.Project, dimensionID string) error {
	dim, ok := p.Dimensions[dimensionID]
	if !ok {
		return fmt.Errorf("dimension %s: %w", dimensionID, ErrNotFound)
	}
	for _, variantID := range dim.Variants {
		delete(p.Variants, variantID)
	}
	delete(p.Dimensions, dimensionID)
	p.DimOrder = without(p.DimOrder, dimensionID)
	return nil
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
