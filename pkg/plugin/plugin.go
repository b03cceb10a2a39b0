// Copyright 2025 gridforge LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package plugin defines the task-generation contract and the resolver that
// instantiates a named plugin for each processing cycle.
package plugin

import (
	"sort"
	"strings"
	"sync"

	"gitlab.com/tozd/go/errors"

	"github.com/gridforge/transformd/pkg/catalog"
	"github.com/gridforge/transformd/pkg/registry"
)

// TaskGroup binds an ordered list of files to one storage location. The
// processor submits one task per group.
type TaskGroup struct {
	Location string
	FileIDs  []string
}

// Plugin turns a transformation's parameters plus resolved replicas into
// task groups. A fresh instance is created for every processing cycle; a
// plugin never outlives the cycle that configured it.
type Plugin interface {
	// SetParameters supplies the transformation's extended parameters.
	SetParameters(params map[string]string)

	// SetInputReplicas supplies the resolved replica locations for the
	// cycle's (possibly sampled) file set.
	SetInputReplicas(replicas map[string]catalog.ReplicaSet)

	// SetFiles supplies the full, pre-sampling work-item list.
	SetFiles(files []registry.File)

	// GenerateTasks produces the ordered task groups for this cycle.
	GenerateTasks() ([]TaskGroup, error)
}

// Factory creates a new plugin instance.
type Factory func() Plugin

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a plugin factory under a name. Built-ins register at
// package init; external plugins register against the same interface —
// there is no runtime code loading.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// Resolver instantiates named plugins, optionally preferring a configured
// lookup namespace.
type Resolver struct {
	// Location is the namespace tried first: a plugin registered as
	// "<location>/<name>" shadows the bare "<name>" registration.
	Location string
}

// Resolve returns a fresh instance of the named plugin. An unknown name is
// an error for the caller's transformation, never for the process.
func (r *Resolver) Resolve(name string) (Plugin, error) {
	mu.RLock()
	defer mu.RUnlock()

	if r.Location != "" {
		if factory, ok := factories[r.Location+"/"+name]; ok {
			return factory(), nil
		}
	}
	if factory, ok := factories[name]; ok {
		return factory(), nil
	}

	options := make([]string, 0, len(factories))
	for known := range factories {
		options = append(options, known)
	}
	sort.Strings(options)
	return nil, errors.Errorf("plugin %s not found, options: %s", name, strings.Join(options, ", "))
}
