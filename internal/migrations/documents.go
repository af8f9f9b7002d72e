package migrations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/wangchj/inflight-sub000/internal/types"
)

// docStep upgrades a document from one version to the next in place.
// Documents are handled as top-level raw members so that untouched values
// (notably the selected variants object) keep their exact bytes and key order.
type docStep func(doc map[string]json.RawMessage) error

var projectSteps = map[int]docStep{
	1: projectV1ToV2,
	2: projectV2ToV3,
}

var workspaceSteps = map[int]docStep{
	1: workspaceV1ToV2,
}

// UpgradeProject decodes a project document, upgrading it to
// types.ProjectVersion first when it is older. migrated reports whether any
// step ran.
func UpgradeProject(data []byte) (project *types.Project, migrated bool, err error) {
	upgraded, migrated, err := upgrade(data, projectSteps, types.ProjectVersion)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upgrade project: %w", err)
	}

	project = &types.Project{}
	if err := json.Unmarshal(upgraded, project); err != nil {
		return nil, false, fmt.Errorf("failed to decode project: %w", err)
	}
	return project, migrated, nil
}

// UpgradeWorkspace decodes a workspace document, upgrading it to
// types.WorkspaceVersion first when it is older
func UpgradeWorkspace(data []byte) (workspace *types.Workspace, migrated bool, err error) {
	upgraded, migrated, err := upgrade(data, workspaceSteps, types.WorkspaceVersion)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upgrade workspace: %w", err)
	}

	workspace = &types.Workspace{}
	if err := json.Unmarshal(upgraded, workspace); err != nil {
		return nil, false, fmt.Errorf("failed to decode workspace: %w", err)
	}
	return workspace, migrated, nil
}

func upgrade(data []byte, steps map[int]docStep, latest int) ([]byte, bool, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, err
	}
	if doc == nil {
		return nil, false, fmt.Errorf("document is not an object")
	}

	// Documents written before versioning have no version field
	version := 1
	if raw, ok := doc["version"]; ok {
		if err := json.Unmarshal(raw, &version); err != nil {
			return nil, false, fmt.Errorf("invalid version: %w", err)
		}
	}

	if version > latest {
		return nil, false, fmt.Errorf("document version %d is newer than supported version %d", version, latest)
	}
	if version == latest {
		return data, false, nil
	}

	for v := version; v < latest; v++ {
		step, ok := steps[v]
		if !ok {
			return nil, false, fmt.Errorf("no migration from version %d", v)
		}
		if err := step(doc); err != nil {
			return nil, false, fmt.Errorf("migration from version %d: %w", v, err)
		}
		doc["version"] = json.RawMessage(fmt.Sprint(v + 1))
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// projectV1ToV2 turns each variant's vars object into a list sorted by name
func projectV1ToV2(doc map[string]json.RawMessage) error {
	raw, ok := doc["variants"]
	if !ok || isNull(raw) {
		return nil
	}

	var variants map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &variants); err != nil {
		return fmt.Errorf("variants: %w", err)
	}

	for id, variant := range variants {
		varsRaw, ok := variant["vars"]
		if !ok || isNull(varsRaw) {
			variant["vars"] = json.RawMessage("[]")
			continue
		}
		if bytes.HasPrefix(bytes.TrimSpace(varsRaw), []byte("[")) {
			continue
		}

		var vars map[string]string
		if err := json.Unmarshal(varsRaw, &vars); err != nil {
			return fmt.Errorf("variant %s vars: %w", id, err)
		}
		names := make([]string, 0, len(vars))
		for name := range vars {
			names = append(names, name)
		}
		sort.Strings(names)

		list := make([]types.Var, 0, len(names))
		for _, name := range names {
			list = append(list, types.Var{Name: name, Value: vars[name]})
		}
		encoded, err := json.Marshal(list)
		if err != nil {
			return err
		}
		variant["vars"] = encoded
	}

	encoded, err := json.Marshal(variants)
	if err != nil {
		return err
	}
	doc["variants"] = encoded
	return nil
}

// projectV2ToV3 makes auth explicit on every request and derives dimOrder
// from the dimension ids when it is absent
func projectV2ToV3(doc map[string]json.RawMessage) error {
	if raw, ok := doc["requests"]; ok && !isNull(raw) {
		var requests map[string]map[string]json.RawMessage
		if err := json.Unmarshal(raw, &requests); err != nil {
			return fmt.Errorf("requests: %w", err)
		}
		for _, req := range requests {
			if auth, ok := req["auth"]; !ok || isNull(auth) {
				req["auth"] = json.RawMessage(`{"type":"none"}`)
			}
		}
		encoded, err := json.Marshal(requests)
		if err != nil {
			return err
		}
		doc["requests"] = encoded
	}

	if raw, ok := doc["dimOrder"]; !ok || isNull(raw) {
		var dimensions map[string]json.RawMessage
		if dimRaw, ok := doc["dimensions"]; ok && !isNull(dimRaw) {
			if err := json.Unmarshal(dimRaw, &dimensions); err != nil {
				return fmt.Errorf("dimensions: %w", err)
			}
		}
		order := make([]string, 0, len(dimensions))
		for id := range dimensions {
			order = append(order, id)
		}
		sort.Strings(order)
		encoded, err := json.Marshal(order)
		if err != nil {
			return err
		}
		doc["dimOrder"] = encoded
	}

	return nil
}

// workspaceV1ToV2 converts "kind:id" opened resource strings to objects
func workspaceV1ToV2(doc map[string]json.RawMessage) error {
	raw, ok := doc["openedResources"]
	if !ok || isNull(raw) {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("openedResources: %w", err)
	}

	resources := make([]types.OpenedResource, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			// Already an object
			var r types.OpenedResource
			if err := json.Unmarshal(item, &r); err != nil {
				return fmt.Errorf("openedResources: %w", err)
			}
			resources = append(resources, r)
			continue
		}

		kind, id, found := cutKind(s)
		if !found {
			return fmt.Errorf("openedResources: malformed entry %q", s)
		}
		resources = append(resources, types.OpenedResource{Type: kind, ID: id})
	}

	encoded, err := json.Marshal(resources)
	if err != nil {
		return err
	}
	doc["openedResources"] = encoded
	return nil
}

func cutKind(s string) (types.ResourceKind, string, bool) {
	k, id, found := strings.Cut(s, ":")
	kind := types.ResourceKind(k)
	if !found || !kind.Valid() || id == "" {
		return "", "", false
	}
	return kind, id, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
