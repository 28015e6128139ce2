package deviceconfig

import (
	"fmt"
	"sort"

	"github.com/lte-gateway/enodebd/internal/datamodel"
)

// Configuration holds parameter values and object instances of one device,
// either as reported by the device or as desired by the gateway. It is owned
// by a single session and not safe for concurrent use.
type Configuration struct {
	model   datamodel.DataModel
	values  map[datamodel.ParameterName]any
	objects map[datamodel.ParameterName]struct{}
}

// New creates an empty configuration for the given data model
func New(dm datamodel.DataModel) *Configuration {
	return &Configuration{
		model:   dm,
		values:  make(map[datamodel.ParameterName]any),
		objects: make(map[datamodel.ParameterName]struct{}),
	}
}

// Model returns the data model the configuration is keyed by
func (c *Configuration) Model() datamodel.DataModel {
	return c.model
}

// GetParameter returns the stored value
func (c *Configuration) GetParameter(name datamodel.ParameterName) (any, bool) {
	v, ok := c.values[name]
	return v, ok
}

// SetParameter stores a canonical value. Names the model does not support
// are rejected with datamodel.ErrUnsupportedParameter.
func (c *Configuration) SetParameter(name datamodel.ParameterName, value any) error {
	p, ok := c.model.GetParameter(name)
	if !ok {
		return fmt.Errorf("set %s: %w", name, datamodel.ErrUnsupportedParameter)
	}
	if p.IsObject() {
		return fmt.Errorf("set %s: object parameters hold no value", name)
	}
	c.values[name] = value
	return nil
}

// HasParameter reports whether a value is stored
func (c *Configuration) HasParameter(name datamodel.ParameterName) bool {
	_, ok := c.values[name]
	return ok
}

// DeleteParameter removes a stored value
func (c *Configuration) DeleteParameter(name datamodel.ParameterName) {
	delete(c.values, name)
}

// ParameterNames returns the names holding a value, sorted
func (c *Configuration) ParameterNames() []datamodel.ParameterName {
	names := make([]datamodel.ParameterName, 0, len(c.values))
	for n := range c.values {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// AddObject records an object instance such as "PLMN 2"
func (c *Configuration) AddObject(name datamodel.ParameterName) error {
	if _, ok := c.model.GetParameter(name); !ok {
		return fmt.Errorf("add object %s: %w", name, datamodel.ErrUnsupportedParameter)
	}
	if _, ok := c.model.NumberedParameterNames()[name]; !ok {
		return fmt.Errorf("add object %s: not a numbered object", name)
	}
	c.objects[name] = struct{}{}
	return nil
}

// DeleteObject removes an object instance and the values of its sub-parameters
func (c *Configuration) DeleteObject(name datamodel.ParameterName) {
	delete(c.objects, name)
	for _, sub := range c.model.NumberedParameterNames()[name] {
		delete(c.values, sub)
	}
}

// HasObject reports whether an object instance exists
func (c *Configuration) HasObject(name datamodel.ParameterName) bool {
	_, ok := c.objects[name]
	return ok
}

// ObjectNames returns the object instances ordered by instance number
func (c *Configuration) ObjectNames() []datamodel.ParameterName {
	names := make([]datamodel.ParameterName, 0, len(c.objects))
	for n := range c.objects {
		names = append(names, n)
	}
	sortByInstance(names)
	return names
}

// Snapshot renders the configuration for persistence and the API
func (c *Configuration) Snapshot() map[string]any {
	out := make(map[string]any, len(c.values)+1)
	for n, v := range c.values {
		out[string(n)] = v
	}
	objects := make([]string, 0, len(c.objects))
	for _, n := range c.ObjectNames() {
		objects = append(objects, string(n))
	}
	out["objects"] = objects
	return out
}

func sortByInstance(names []datamodel.ParameterName) {
	sort.Slice(names, func(i, j int) bool {
		_, a, okA := datamodel.ParseIndexed(names[i])
		_, b, okB := datamodel.ParseIndexed(names[j])
		if okA && okB && a != b {
			return a < b
		}
		return names[i] < names[j]
	})
}
