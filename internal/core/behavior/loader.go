package behavior

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config describes a tree as a flat map of named nodes.
type Config struct {
	Root    string                `yaml:"root"`
	Nodes   map[string]NodeConfig `yaml:"nodes"`
	Sensors []SensorConfig        `yaml:"sensors"`
}

type NodeConfig struct {
	// Type is one of sequence, selector, parallel, decorator, action or
	// condition.
	Type      string   `yaml:"type"`
	Children  []string `yaml:"children,omitempty"`
	Child     string   `yaml:"child,omitempty"`
	Action    string   `yaml:"action,omitempty"`
	Condition string   `yaml:"condition,omitempty"`
	Decorator string   `yaml:"decorator,omitempty"`
	Params    Params   `yaml:"params,omitempty"`
}

type SensorConfig struct {
	Type   string `yaml:"type"`
	Params Params `yaml:"params"`
}

func LoadConfig(r io.Reader) (*Config, error) {
	var c Config
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTree, err)
	}
	return &c, nil
}

// Build instantiates the configured tree. Nodes referenced more than once
// are shared; reference cycles are rejected.
func Build[S any](c *Config, reg *Registry[S]) (*Tree[S], error) {
	if c.Root == "" {
		return nil, fmt.Errorf("%w: no root", ErrInvalidTree)
	}
	b := &builder[S]{config: c, reg: reg, built: make(map[string]Node[S]), visiting: make(map[string]bool)}
	root, err := b.node(c.Root)
	if err != nil {
		return nil, err
	}

	sensors := make([]Sensor[S], 0, len(c.Sensors))
	for _, sc := range c.Sensors {
		s, err := reg.NewSensor(sc.Type, sc.Params)
		if err != nil {
			return nil, err
		}
		sensors = append(sensors, s)
	}
	return NewTree(root, sensors...), nil
}

type builder[S any] struct {
	config   *Config
	reg      *Registry[S]
	built    map[string]Node[S]
	visiting map[string]bool
}

func (b *builder[S]) node(name string) (Node[S], error) {
	if n, ok := b.built[name]; ok {
		return n, nil
	}
	if b.visiting[name] {
		return nil, fmt.Errorf("%w: cycle through %q", ErrInvalidTree, name)
	}
	nc, ok := b.config.Nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, name)
	}
	b.visiting[name] = true
	defer delete(b.visiting, name)

	var (
		n   Node[S]
		err error
	)
	switch strings.ToLower(nc.Type) {
	case "sequence", "selector", "parallel":
		var children []Node[S]
		if children, err = b.children(name, nc.Children); err != nil {
			return nil, err
		}
		switch strings.ToLower(nc.Type) {
		case "sequence":
			n = NewSequence(name, children...)
		case "selector":
			n = NewSelector(name, children...)
		default:
			policy := RequireAll
			if p := nc.Params.String("policy", "all"); p == "one" || p == "any" {
				policy = RequireOne
			}
			n = NewParallel(name, policy, children...)
		}
	case "decorator":
		if nc.Child == "" {
			return nil, fmt.Errorf("%w: decorator %q requires a child", ErrInvalidTree, name)
		}
		var child Node[S]
		if child, err = b.node(nc.Child); err != nil {
			return nil, err
		}
		n, err = b.reg.NewDecorator(nc.Decorator, name, nc.Params, child)
	case "action":
		n, err = b.reg.NewLeaf(nc.Action, nc.Params)
	case "condition":
		n, err = b.reg.NewLeaf(nc.Condition, nc.Params)
	default:
		return nil, fmt.Errorf("%w: node %q has type %q", ErrInvalidTree, name, nc.Type)
	}
	if err != nil {
		return nil, err
	}
	b.built[name] = n
	return n, nil
}

func (b *builder[S]) children(parent string, names []string) ([]Node[S], error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %q has no children", ErrInvalidTree, parent)
	}
	out := make([]Node[S], 0, len(names))
	for _, name := range names {
		n, err := b.node(name)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
