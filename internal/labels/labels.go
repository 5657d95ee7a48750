// Package labels provides the ordered label sets classifiers score against.
package labels

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrLabelIndexOutOfRange is returned when an index falls outside the set, or
// when a score vector does not line up with the set.
var ErrLabelIndexOutOfRange = errors.New("label index out of range")

const (
	PresetGTSRB       = "gtsrb"
	PresetPlaceholder = "placeholder"
)

// gtsrb lists the 43 German Traffic Sign Recognition Benchmark classes.
var gtsrb = []string{
	"Speed limit (20km/h)",
	"Speed limit (30km/h)",
	"Speed limit (50km/h)",
	"Speed limit (60km/h)",
	"Speed limit (70km/h)",
	"Speed limit (80km/h)",
	"End of speed limit (80km/h)",
	"Speed limit (100km/h)",
	"Speed limit (120km/h)",
	"No passing",
	"No passing for vehicles over 3.5 metric tons",
	"Right-of-way at the next intersection",
	"Priority road",
	"Yield",
	"Stop",
	"No vehicles",
	"Vehicles over 3.5 metric tons prohibited",
	"No entry",
	"General caution",
	"Dangerous curve to the left",
	"Dangerous curve to the right",
	"Double curve",
	"Bumpy road",
	"Slippery road",
	"Road narrows on the right",
	"Road work",
	"Traffic signals",
	"Pedestrians",
	"Children crossing",
	"Bicycles crossing",
	"Beware of ice/snow",
	"Wild animals crossing",
	"End of all speed and passing limits",
	"Turn right ahead",
	"Turn left ahead",
	"Ahead only",
	"Go straight or right",
	"Go straight or left",
	"Keep right",
	"Keep left",
	"Roundabout mandatory",
	"End of no passing",
	"End of no passing by vehicles over 3.5 metric tons",
}

// Set maps class indices to display names. The zero value is an empty set.
type Set struct {
	name  string
	names []string
}

// New builds a set from names in index order.
func New(name string, names []string) (*Set, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("labels: set %q is empty", name)
	}
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("labels: set %q has an empty name at index %d", name, i)
		}
	}
	return &Set{name: name, names: append([]string(nil), names...)}, nil
}

// Preset returns one of the built-in sets.
func Preset(name string) (*Set, error) {
	switch name {
	case PresetGTSRB:
		return New(name, gtsrb)
	case PresetPlaceholder:
		return New(name, gtsrb[:10])
	default:
		return nil, fmt.Errorf("labels: unknown preset %q", name)
	}
}

type fileFormat struct {
	Name   string   `yaml:"name"`
	Labels []string `yaml:"labels"`
}

// LoadFile reads a YAML label file of the form
//
//	name: my-signs
//	labels:
//	  - Stop
//	  - Yield
func LoadFile(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("labels: read %s: %w", path, err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("labels: parse %s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = path
	}
	return New(f.Name, f.Labels)
}

// Name is the set's identifier, the preset name or the file's name field.
func (s *Set) Name() string { return s.name }

// Len is the number of labels.
func (s *Set) Len() int { return len(s.names) }

// Label returns the display name of class i.
func (s *Set) Label(i int) (string, error) {
	if i < 0 || i >= len(s.names) {
		return "", fmt.Errorf("%w: %d not in [0,%d)", ErrLabelIndexOutOfRange, i, len(s.names))
	}
	return s.names[i], nil
}

// Names returns a copy of every label in index order.
func (s *Set) Names() []string {
	return append([]string(nil), s.names...)
}
