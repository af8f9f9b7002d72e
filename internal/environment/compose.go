package environment

import "github.com/wangchj/inflight-sub000/internal/types"

// VarMap is a flat name to value mapping. A published VarMap is never
// mutated.
type VarMap map[string]string

// Lookup returns the value bound to name
func (m VarMap) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// VariantVars flattens a variant's list. When a name appears more than once
// the last entry wins.
func VariantVars(v types.Variant) VarMap {
	out := make(VarMap, len(v.Vars))
	for _, kv := range v.Vars {
		out[kv.Name] = kv.Value
	}
	return out
}

// Combine merges the variables of every selected variant.
//
// Entries are applied in selection order, not DimOrder, and a later
// dimension overrides an earlier one on a name collision. Dimensions that
// are not selected contribute nothing, and neither does a selection pointing
// at a variant that no longer exists.
func Combine(project *types.Project, selection types.Selection) VarMap {
	out := make(VarMap)
	if project == nil {
		return out
	}
	for _, sel := range selection {
		variant, ok := project.Variants[sel.VariantID]
		if !ok {
			continue
		}
		for name, value := range VariantVars(variant) {
			out[name] = value
		}
	}
	return out
}

// Overlay returns a copy of base with extra applied on top
func Overlay(base VarMap, extra map[string]string) VarMap {
	out := make(VarMap, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
