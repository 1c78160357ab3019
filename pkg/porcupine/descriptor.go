package porcupine

import (
	"github.com/oneconcern/porcupine/pkg/address"
	"github.com/oneconcern/porcupine/pkg/porcupine/status"
	"gopkg.in/yaml.v2"
)

// Descriptor records the root of a sealed tree, along with its structural parameters.
//
// Descriptors are persisted independently from node blocks.
type Descriptor struct {
	Root       string   `yaml:"root,omitempty"`
	Strategy   Strategy `yaml:"strategy"`
	Height     int      `yaml:"height"`
	Count      int      `yaml:"count"`
	Extent     int      `yaml:"extent"`
	Contention float64  `yaml:"contention"`
}

// ParseDescriptor decodes a YAML descriptor
func ParseDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := yaml.UnmarshalStrict(data, &d); err != nil {
		return d, status.ErrIntegrity.Detail("invalid descriptor").Wrap(err)
	}
	return d, d.Validate()
}

// Marshal the descriptor as YAML
func (d Descriptor) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// Address of the root node
func (d Descriptor) Address() (address.Address, error) {
	if d.Root == "" {
		return address.Null, nil
	}
	addr, err := address.FromString(d.Root)
	if err != nil {
		return address.Null, status.ErrIntegrity.Detail("invalid root address in descriptor").Wrap(err)
	}
	return addr, nil
}

// Validate the consistency of the descriptor
func (d Descriptor) Validate() error {
	addr, err := d.Address()
	if err != nil {
		return err
	}

	switch d.Strategy {
	case StrategyEmpty:
		if !addr.IsNull() || d.Height != 0 || d.Count != 0 {
			return status.ErrIntegrity.Detail("an empty tree has no root, height or count")
		}
	case StrategyValue:
		if addr.IsNull() || d.Height != 1 {
			return status.ErrIntegrity.Detail("a single leaf tree has a root and a height of 1")
		}
	case StrategyTree:
		if addr.IsNull() || d.Height < 2 {
			return status.ErrIntegrity.Detail("a tree has a root and a height of at least 2")
		}
	default:
		return status.ErrIntegrity.Detail("unknown strategy %q", d.Strategy)
	}

	if d.Count < 0 || d.Extent < 0 || d.Contention < 0 || d.Contention >= 1 {
		return status.ErrIntegrity.Detail("invalid descriptor parameters")
	}

	return nil
}
