package harel

import (
	"maps"
	"sync"
)

// DataModel is a thread-safe key/value store for a host's extended state.
// Install it with WithHost and read it from actions and conditions through
// HostData.
type DataModel struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewDataModel creates an empty data model.
func NewDataModel() *DataModel {
	return &DataModel{
		data: make(map[string]any),
	}
}

// Get returns the value stored under key.
func (d *DataModel) Get(key string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.data[key]
	return v, ok
}

// Set stores a value under key.
func (d *DataModel) Set(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[key] = value
}

// Delete removes key.
func (d *DataModel) Delete(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.data, key)
}

// All returns a copy of the stored values.
func (d *DataModel) All() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.data)
}

// Load replaces the stored values with a copy of data.
func (d *DataModel) Load(data map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = maps.Clone(data)
	if d.data == nil {
		d.data = make(map[string]any)
	}
}

// HostData returns the DataModel installed as host, if any.
func HostData(host any) (*DataModel, bool) {
	dm, ok := host.(*DataModel)
	return dm, ok && dm != nil
}
