package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridforge/transformd/pkg/catalog"
	"github.com/gridforge/transformd/pkg/registry"
)

func files(ids ...string) []registry.File {
	out := make([]registry.File, len(ids))
	for i, id := range ids {
		out[i] = registry.File{ID: id, Status: registry.FileStatusUnused}
	}
	return out
}

func TestStandardGenerateTasks(t *testing.T) {
	tests := []struct {
		name     string
		files    []registry.File
		replicas map[string]catalog.ReplicaSet
		params   map[string]string
		want     []TaskGroup
	}{
		{
			name:  "groups_by_location_set",
			files: files("a", "b", "c", "d"),
			replicas: map[string]catalog.ReplicaSet{
				"a": {"SE-1": "/a"},
				"b": {"SE-1": "/b", "SE-2": "/b"},
				"c": {"SE-1": "/c"},
				"d": {"SE-2": "/d", "SE-1": "/d"},
			},
			want: []TaskGroup{
				{Location: "SE-1", FileIDs: []string{"a", "c"}},
				{Location: "SE-1", FileIDs: []string{"b", "d"}},
			},
		},
		{
			name:  "skips_files_without_replicas",
			files: files("a", "b"),
			replicas: map[string]catalog.ReplicaSet{
				"b": {"SE-1": "/b"},
			},
			want: []TaskGroup{
				{Location: "SE-1", FileIDs: []string{"b"}},
			},
		},
		{
			name:     "no_replicas_no_tasks",
			files:    files("a", "b"),
			replicas: map[string]catalog.ReplicaSet{},
			want:     nil,
		},
		{
			name:  "group_size_chunks",
			files: files("a", "b", "c", "d", "e"),
			replicas: map[string]catalog.ReplicaSet{
				"a": {"SE-1": "/a"},
				"b": {"SE-1": "/b"},
				"c": {"SE-1": "/c"},
				"d": {"SE-1": "/d"},
				"e": {"SE-1": "/e"},
			},
			params: map[string]string{"GroupSize": "2"},
			want: []TaskGroup{
				{Location: "SE-1", FileIDs: []string{"a", "b"}},
				{Location: "SE-1", FileIDs: []string{"c", "d"}},
				{Location: "SE-1", FileIDs: []string{"e"}},
			},
		},
		{
			name:  "invalid_group_size_ignored",
			files: files("a", "b"),
			replicas: map[string]catalog.ReplicaSet{
				"a": {"SE-1": "/a"},
				"b": {"SE-1": "/b"},
			},
			params: map[string]string{"GroupSize": "nope"},
			want: []TaskGroup{
				{Location: "SE-1", FileIDs: []string{"a", "b"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Standard{}
			s.SetParameters(tt.params)
			s.SetInputReplicas(tt.replicas)
			s.SetFiles(tt.files)

			got, err := s.GenerateTasks()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStandardIsDeterministic(t *testing.T) {
	replicas := map[string]catalog.ReplicaSet{
		"a": {"SE-2": "/a", "SE-1": "/a"},
		"b": {"SE-3": "/b"},
		"c": {"SE-1": "/c"},
	}

	var first []TaskGroup
	for i := 0; i < 20; i++ {
		s := &Standard{}
		s.SetInputReplicas(replicas)
		s.SetFiles(files("a", "b", "c"))

		got, err := s.GenerateTasks()
		require.NoError(t, err)
		if first == nil {
			first = got
			continue
		}
		require.Equal(t, first, got, "map iteration order must not leak into the output")
	}
}

func TestResolverPrefersLocation(t *testing.T) {
	type marker struct{ Standard }

	Register("testns/Marked", func() Plugin { return &marker{} })
	Register("Marked", func() Plugin { return &Standard{} })

	namespaced := &Resolver{Location: "testns"}
	got, err := namespaced.Resolve("Marked")
	require.NoError(t, err)
	assert.IsType(t, &marker{}, got, "namespaced registration shadows the bare one")

	bare := &Resolver{}
	got, err = bare.Resolve("Marked")
	require.NoError(t, err)
	assert.IsType(t, &Standard{}, got)
}

func TestResolverFallsBackToBareName(t *testing.T) {
	r := &Resolver{Location: "no-such-namespace"}
	got, err := r.Resolve("Standard")
	require.NoError(t, err)
	assert.IsType(t, &Standard{}, got)
}

func TestResolverUnknownPlugin(t *testing.T) {
	r := &Resolver{}
	_, err := r.Resolve("Bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bogus")
	assert.Contains(t, err.Error(), "Standard", "the error lists the known plugins")
}

func TestResolverReturnsFreshInstances(t *testing.T) {
	r := &Resolver{}
	a, err := r.Resolve("Standard")
	require.NoError(t, err)
	b, err := r.Resolve("Standard")
	require.NoError(t, err)
	assert.NotSame(t, a, b, "each cycle gets its own plugin instance")
}
