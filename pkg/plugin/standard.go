package plugin

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gridforge/transformd/pkg/catalog"
	"github.com/gridforge/transformd/pkg/registry"
)

func init() {
	Register("Standard", func() Plugin { return &Standard{} })
}

// Standard is the default task-generation plugin: files sharing the same
// replica location set are grouped together and each group becomes one task
// at the first location of that set. The optional GroupSize parameter
// splits groups into fixed-size chunks.
type Standard struct {
	params   map[string]string
	replicas map[string]catalog.ReplicaSet
	files    []registry.File
}

var _ Plugin = (*Standard)(nil)

func (s *Standard) SetParameters(params map[string]string) {
	s.params = params
}

func (s *Standard) SetInputReplicas(replicas map[string]catalog.ReplicaSet) {
	s.replicas = replicas
}

func (s *Standard) SetFiles(files []registry.File) {
	s.files = files
}

// GenerateTasks groups files by identical location sets, in deterministic
// order: groups sorted by their location key, files kept in enumeration
// order. Files with no resolved replicas are left for a later cycle.
func (s *Standard) GenerateTasks() ([]TaskGroup, error) {
	groups := map[string][]string{}
	for _, file := range s.files {
		locations := s.replicas[file.ID]
		if len(locations) == 0 {
			continue
		}
		names := make([]string, 0, len(locations))
		for location := range locations {
			names = append(names, location)
		}
		sort.Strings(names)
		key := strings.Join(names, ",")
		groups[key] = append(groups[key], file.ID)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	groupSize := 0
	if raw, ok := s.params["GroupSize"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			groupSize = n
		}
	}

	var tasks []TaskGroup
	for _, key := range keys {
		target := strings.SplitN(key, ",", 2)[0]
		fileIDs := groups[key]
		if groupSize == 0 {
			tasks = append(tasks, TaskGroup{Location: target, FileIDs: fileIDs})
			continue
		}
		for start := 0; start < len(fileIDs); start += groupSize {
			end := min(start+groupSize, len(fileIDs))
			tasks = append(tasks, TaskGroup{Location: target, FileIDs: fileIDs[start:end]})
		}
	}
	return tasks, nil
}
