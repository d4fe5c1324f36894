package api

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Settings carries the process-wide configuration consumed by the registry.
type Settings struct {
	// UserDir is copied into every StoreConfig; file-backed stores default
	// their location to it.
	UserDir string `yaml:"userDir"`

	// GlobalContext seeds the global scope with read-through defaults.
	GlobalContext map[string]any `yaml:"globalContext"`

	// ContextStorage lists the configured stores in declaration order.
	ContextStorage StorageConfig `yaml:"contextStorage"`

	LogLevel string `yaml:"logLevel"`
}

// StorageEntry is one named entry of the storage configuration. Exactly one
// of Alias or (Module | Factory) is meaningful.
type StorageEntry struct {
	Name string

	// Alias names another entry; only valid under the name "default".
	Alias string

	// Module is the symbolic name of a builtin store implementation.
	Module string
	// Factory overrides Module with an already constructed factory.
	Factory StoreFactory

	Config map[string]any
}

// StorageConfig is the ordered storage configuration. Order matters: without
// an explicit default, the first entry becomes the default store.
type StorageConfig []StorageEntry

// UnmarshalYAML decodes a YAML mapping while keeping declaration order.
//
//	contextStorage:
//	  file: {module: localfilesystem}
//	  default: file
func (c *StorageConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*c = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("contextStorage: expected mapping, got %s", nodeKind(node))
	}

	entries := make(StorageConfig, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		val := node.Content[i+1]
		entry := StorageEntry{Name: name}

		switch val.Kind {
		case yaml.ScalarNode:
			if val.Tag != "!!null" {
				entry.Alias = val.Value
			}
		case yaml.MappingNode:
			var raw struct {
				Module string         `yaml:"module"`
				Config map[string]any `yaml:"config"`
			}
			if err := val.Decode(&raw); err != nil {
				return fmt.Errorf("contextStorage.%s: %w", name, err)
			}
			entry.Module = raw.Module
			entry.Config = raw.Config
		default:
			return fmt.Errorf("contextStorage.%s: expected string or mapping, got %s", name, nodeKind(val))
		}

		entries = append(entries, entry)
	}

	*c = entries
	return nil
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}

// FlowConfig describes the currently deployed flows. Nodes lists every active
// node id, flow ids included.
type FlowConfig struct {
	Nodes []string
}

// ActiveNodes returns Nodes as a set.
func (f FlowConfig) ActiveNodes() map[string]struct{} {
	set := make(map[string]struct{}, len(f.Nodes))
	for _, id := range f.Nodes {
		set[id] = struct{}{}
	}
	return set
}

// StoreList describes the loaded stores: the name of the default store and
// every configured store in declaration order.
type StoreList struct {
	Default string
	Stores  []string
}
