/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package devices holds the registry of output displays. The default
// deployment ships four wall-mounted TVs; the set is configurable but
// closed at process start.
package devices

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Device is an output target identified by an opaque key.
type Device struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Registry is the closed set of known devices.
type Registry struct {
	byID  map[string]Device
	order []string
}

// Defaults returns the built-in four-TV registry.
func Defaults() *Registry {
	return NewRegistry([]Device{
		{ID: "tv1", Name: "TV 1"},
		{ID: "tv2", Name: "TV 2"},
		{ID: "tv3", Name: "TV 3"},
		{ID: "tv4", Name: "TV 4"},
	})
}

// NewRegistry builds a registry from an explicit device list. Later
// duplicates replace earlier ones.
func NewRegistry(list []Device) *Registry {
	r := &Registry{byID: make(map[string]Device, len(list))}
	for _, d := range list {
		if _, ok := r.byID[d.ID]; !ok {
			r.order = append(r.order, d.ID)
		}
		r.byID[d.ID] = d
	}
	return r
}

type registryFile struct {
	Devices []Device `yaml:"devices"`
}

// LoadFile reads a YAML device registry. An empty path yields the
// built-in defaults.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse device registry: %w", err)
	}

	if len(file.Devices) == 0 {
		return nil, fmt.Errorf("device registry %s lists no devices", path)
	}

	for _, d := range file.Devices {
		if d.ID == "" {
			return nil, fmt.Errorf("device registry %s contains a device without an id", path)
		}
	}

	return NewRegistry(file.Devices), nil
}

// Lookup returns the device for a key.
func (r *Registry) Lookup(id string) (Device, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// Known reports whether the key names a registered device.
func (r *Registry) Known(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// All returns every device in registration order.
func (r *Registry) All() []Device {
	list := make([]Device, 0, len(r.order))
	for _, id := range r.order {
		list = append(list, r.byID[id])
	}
	return list
}

// IDs returns the sorted device keys.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
