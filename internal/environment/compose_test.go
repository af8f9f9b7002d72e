package environment

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangchj/inflight-sub000/internal/logging"
	"github.com/wangchj/inflight-sub000/internal/types"
)

func testProject() *types.Project {
	return &types.Project{
		Version: types.ProjectVersion,
		Dimensions: map[string]types.Dimension{
			"stage":  {Name: "Stage", Variants: []string{"dev", "prod"}},
			"region": {Name: "Region", Variants: []string{"use1", "euw1"}},
		},
		DimOrder: []string{"stage", "region"},
		Variants: map[string]types.Variant{
			"dev": {Name: "Dev", Vars: []types.Var{
				{Name: "baseUrl", Value: "https://{{apiId}}.execute-api.{{region}}.amazonaws.com/dev"},
				{Name: "apiId", Value: "abc123"},
				{Name: "region", Value: "us-west-2"},
			}},
			"prod": {Name: "Prod", Vars: []types.Var{
				{Name: "apiId", Value: "prod999"},
			}},
			"use1": {Name: "us-east-1", Vars: []types.Var{
				{Name: "region", Value: "us-east-1"},
			}},
			"euw1": {Name: "eu-west-1", Vars: []types.Var{
				{Name: "region", Value: "eu-west-1"},
			}},
		},
	}
}

func TestVariantVars_DuplicateLastWins(t *testing.T) {
	v := types.Variant{Vars: []types.Var{
		{Name: "a", Value: "first"},
		{Name: "b", Value: "x"},
		{Name: "a", Value: "second"},
	}}

	got := VariantVars(v)
	assert.Equal(t, VarMap{"a": "second", "b": "x"}, got)
}

func TestCombine(t *testing.T) {
	p := testProject()

	tests := []struct {
		name      string
		selection types.Selection
		want      VarMap
	}{
		{
			name:      "empty selection",
			selection: nil,
			want:      VarMap{},
		},
		{
			name:      "single dimension",
			selection: types.Selection{{DimensionID: "stage", VariantID: "prod"}},
			want:      VarMap{"apiId": "prod999"},
		},
		{
			name: "later dimension overrides earlier",
			selection: types.Selection{
				{DimensionID: "stage", VariantID: "dev"},
				{DimensionID: "region", VariantID: "use1"},
			},
			want: VarMap{
				"baseUrl": "https://{{apiId}}.execute-api.{{region}}.amazonaws.com/dev",
				"apiId":   "abc123",
				"region":  "us-east-1",
			},
		},
		{
			name: "selection order wins over dimOrder",
			selection: types.Selection{
				{DimensionID: "region", VariantID: "use1"},
				{DimensionID: "stage", VariantID: "dev"},
			},
			want: VarMap{
				"baseUrl": "https://{{apiId}}.execute-api.{{region}}.amazonaws.com/dev",
				"apiId":   "abc123",
				"region":  "us-west-2",
			},
		},
		{
			name: "stale variant contributes nothing",
			selection: types.Selection{
				{DimensionID: "stage", VariantID: "deleted"},
				{DimensionID: "region", VariantID: "euw1"},
			},
			want: VarMap{"region": "eu-west-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Combine(p, tt.selection)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCombine_OverrideProperty(t *testing.T) {
	p := testProject()
	sel := types.Selection{
		{DimensionID: "stage", VariantID: "dev"},
		{DimensionID: "region", VariantID: "euw1"},
	}

	got := Combine(p, sel)

	// Every name of the last selected variant maps to that variant's value
	for name, value := range VariantVars(p.Variants["euw1"]) {
		assert.Equal(t, value, got[name], name)
	}
	// Names bound only by earlier variants are kept
	assert.Equal(t, "abc123", got["apiId"])
}

func TestCombine_Idempotent(t *testing.T) {
	p := testProject()
	sel := types.Selection{{DimensionID: "stage", VariantID: "dev"}}

	assert.Equal(t, Combine(p, sel), Combine(p, sel))
}

func TestCombine_NilProject(t *testing.T) {
	got := Combine(nil, types.Selection{{DimensionID: "a", VariantID: "b"}})
	assert.Empty(t, got)
}

func TestOverlay(t *testing.T) {
	base := VarMap{"a": "1", "b": "2"}
	got := Overlay(base, map[string]string{"b": "override", "c": "3"})

	assert.Equal(t, VarMap{"a": "1", "b": "override", "c": "3"}, got)
	assert.Equal(t, "2", base["b"], "base must not be modified")
}

func TestStore_ComposePublishesAndNotifies(t *testing.T) {
	s := NewStore(logging.NewNopLogger())
	require.Empty(t, s.Snapshot())

	var mu sync.Mutex
	var seen []VarMap
	unsubscribe := s.Subscribe(func(v VarMap) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})

	p := testProject()
	s.Compose(p, types.Selection{{DimensionID: "stage", VariantID: "prod"}})

	value, ok := s.Lookup("apiId")
	require.True(t, ok)
	assert.Equal(t, "prod999", value)

	_, ok = s.Lookup("region")
	assert.False(t, ok)

	unsubscribe()
	s.Compose(p, nil)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, VarMap{"apiId": "prod999"}, seen[0])
	assert.Empty(t, s.Snapshot())
}

func TestStore_SequenceNumbers(t *testing.T) {
	s := NewStore(logging.NewNopLogger())
	_, seq := s.Versioned()
	assert.Equal(t, uint64(0), seq)

	var notified []uint64
	unsubscribe := s.SubscribeVersioned(func(_ VarMap, seq uint64) {
		notified = append(notified, seq)
	})
	defer unsubscribe()

	p := testProject()
	s.Compose(p, types.Selection{{DimensionID: "stage", VariantID: "dev"}})
	s.Compose(p, types.Selection{{DimensionID: "stage", VariantID: "prod"}})

	vars, seq := s.Versioned()
	assert.Equal(t, uint64(2), seq)
	assert.Equal(t, VarMap{"apiId": "prod999"}, vars)
	assert.Equal(t, []uint64{1, 2}, notified)
}

func TestStore_SnapshotUnaffectedByLaterCompose(t *testing.T) {
	s := NewStore(logging.NewNopLogger())
	p := testProject()

	s.Compose(p, types.Selection{{DimensionID: "stage", VariantID: "dev"}})
	before := s.Snapshot()

	s.Compose(p, types.Selection{{DimensionID: "stage", VariantID: "prod"}})

	assert.Equal(t, "abc123", before["apiId"])
	assert.Equal(t, "prod999", s.Snapshot()["apiId"])
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore(logging.NewNopLogger())
	p := testProject()
	selections := []types.Selection{
		{{DimensionID: "stage", VariantID: "dev"}},
		{{DimensionID: "stage", VariantID: "prod"}},
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := s.Snapshot()
				// A reader sees either an empty map or one full composition
				if len(snap) != 0 && len(snap) != 1 && len(snap) != 3 {
					t.Errorf("partial snapshot: %v", snap)
					return
				}
			}
		}()
	}
	for j := 0; j < 200; j++ {
		s.Compose(p, selections[j%2])
	}
	wg.Wait()
}
