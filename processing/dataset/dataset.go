// Package dataset reads YOLO dataset descriptors (data.yaml).
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid dataset descriptor")

// Descriptor is a parsed data.yaml. Split paths are resolved against Path,
// which is itself resolved against the descriptor location.
type Descriptor struct {
	File  string
	Path  string
	Train []string
	Val   []string
	Test  []string
	Names []string
}

type rawDescriptor struct {
	Path  string    `yaml:"path"`
	Train yaml.Node `yaml:"train"`
	Val   yaml.Node `yaml:"val"`
	Test  yaml.Node `yaml:"test"`
	NC    *int      `yaml:"nc"`
	Names yaml.Node `yaml:"names"`
}

func Load(file string) (*Descriptor, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "read dataset descriptor")
	}

	return Parse(file, b)
}

func Parse(file string, data []byte) (*Descriptor, error) {
	var raw rawDescriptor
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(ErrInvalid, "%s: %v", file, err)
	}

	d := &Descriptor{File: file}

	base := filepath.Dir(file)
	switch {
	case raw.Path == "":
		d.Path = base
	case filepath.IsAbs(raw.Path):
		d.Path = raw.Path
	default:
		d.Path = filepath.Join(base, raw.Path)
	}

	var err error
	if d.Train, err = splitPaths(d.Path, &raw.Train); err != nil {
		return nil, errors.Wrapf(ErrInvalid, "train: %v", err)
	}
	if d.Val, err = splitPaths(d.Path, &raw.Val); err != nil {
		return nil, errors.Wrapf(ErrInvalid, "val: %v", err)
	}
	if d.Test, err = splitPaths(d.Path, &raw.Test); err != nil {
		return nil, errors.Wrapf(ErrInvalid, "test: %v", err)
	}
	if d.Names, err = classNames(&raw.Names); err != nil {
		return nil, errors.Wrapf(ErrInvalid, "names: %v", err)
	}

	if len(d.Train) == 0 {
		return nil, errors.Wrap(ErrInvalid, "no train split declared")
	}
	if len(d.Val) == 0 {
		return nil, errors.Wrap(ErrInvalid, "no val split declared")
	}
	if len(d.Names) == 0 {
		return nil, errors.Wrap(ErrInvalid, "no class names declared")
	}
	if raw.NC != nil && *raw.NC != len(d.Names) {
		return nil, errors.Wrapf(ErrInvalid, "nc is %d but %d names are declared", *raw.NC, len(d.Names))
	}

	return d, nil
}

// Missing lists declared split paths that do not exist on disk.
func (d *Descriptor) Missing() []string {
	var missing []string
	for _, group := range [][]string{d.Train, d.Val, d.Test} {
		for _, p := range group {
			if _, err := os.Stat(p); err != nil {
				missing = append(missing, p)
			}
		}
	}
	return missing
}

func (d *Descriptor) Summary() string {
	return fmt.Sprintf("%d classes (%s)", len(d.Names), strings.Join(d.Names, ", "))
}

func splitPaths(root string, n *yaml.Node) ([]string, error) {
	var items []string

	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" || n.Value == "" {
			return nil, nil
		}
		items = []string{n.Value}
	case yaml.SequenceNode:
		if err := n.Decode(&items); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("expected a path or a list of paths")
	}

	out := make([]string, 0, len(items))
	for _, p := range items {
		if filepath.IsAbs(p) {
			out = append(out, p)
		} else {
			out = append(out, filepath.Join(root, p))
		}
	}

	return out, nil
}

// classNames accepts both `names: [a, b]` and `names: {0: a, 1: b}`.
func classNames(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.SequenceNode:
		var names []string
		err := n.Decode(&names)
		return names, err
	case yaml.MappingNode:
		var byIndex map[int]string
		if err := n.Decode(&byIndex); err != nil {
			return nil, err
		}

		idx := make([]int, 0, len(byIndex))
		for i := range byIndex {
			idx = append(idx, i)
		}
		sort.Ints(idx)

		names := make([]string, 0, len(idx))
		for want, i := range idx {
			if i != want {
				return nil, fmt.Errorf("class index %d missing", want)
			}
			names = append(names, byIndex[i])
		}
		return names, nil
	default:
		return nil, fmt.Errorf("expected a list or an index map")
	}
}
