// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package modelcfg loads and transforms the model configuration tree.
// The tree is opaque to the pipeline — an arbitrarily nested YAML
// document the inference server interprets — but a few operations happen
// on this side: dotted-path overrides from the command line, reading the
// handful of paths the pipeline itself needs (the manifest location,
// loader settings), and turning off nested pretrained weights before the
// checkpoint is loaded. Transforms walk the tree as explicit
// map/list/scalar cases.
package modelcfg

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Tree is a parsed model configuration: nested map[string]any, []any,
// and scalar nodes.
type Tree = map[string]any

// Load parses the YAML model config at path.
func Load(path string) (Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model config %s: %w", path, err)
	}
	var tree Tree
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parsing model config %s: %w", path, err)
	}
	if tree == nil {
		tree = Tree{}
	}
	return tree, nil
}

// Lookup walks a dotted path ("data.test.ann_file") and returns the node
// there, if any.
func Lookup(tree Tree, dotted string) (any, bool) {
	node := any(tree)
	for _, seg := range strings.Split(dotted, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// StringAt returns the string at a dotted path, or "" when absent or not
// a string.
func StringAt(tree Tree, dotted string) string {
	node, ok := Lookup(tree, dotted)
	if !ok {
		return ""
	}
	s, _ := node.(string)
	return s
}

// IntAt returns the integer at a dotted path, or def when absent or not
// an integer.
func IntAt(tree Tree, dotted string, def int) int {
	node, ok := Lookup(tree, dotted)
	if !ok {
		return def
	}
	switch v := node.(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return def
	}
}

// Set writes value at a dotted path, creating intermediate maps. It
// fails when an intermediate node exists and is not a map; silently
// replacing a scalar with a subtree would hide a typo in the path.
func Set(tree Tree, dotted string, value any) error {
	segs := strings.Split(dotted, ".")
	m := tree
	for i, seg := range segs[:len(segs)-1] {
		child, ok := m[seg]
		if !ok || child == nil {
			next := Tree{}
			m[seg] = next
			m = next
			continue
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("config path %s: %s is not a map", dotted, strings.Join(segs[:i+1], "."))
		}
		m = childMap
	}
	m[segs[len(segs)-1]] = value
	return nil
}

// Merge applies command-line overrides of the form key.path=value. The
// value is parsed as a YAML scalar, so "true", "8", and "0.5" get their
// natural types.
func Merge(tree Tree, overrides []string) error {
	for _, ov := range overrides {
		key, raw, found := strings.Cut(ov, "=")
		if !found || key == "" {
			return fmt.Errorf("config override %q: want key.path=value", ov)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return fmt.Errorf("config override %q: %w", ov, err)
		}
		if err := Set(tree, key, value); err != nil {
			return err
		}
	}
	return nil
}

// DisablePretrained nulls every "pretrained" entry in the tree,
// recursively. Loading a checkpoint supersedes pretrained weights, and
// leaving them on would make the server fetch them for nothing.
func DisablePretrained(node any) {
	switch v := node.(type) {
	case map[string]any:
		if _, ok := v["pretrained"]; ok {
			v["pretrained"] = nil
		}
		for _, child := range v {
			DisablePretrained(child)
		}
	case []any:
		for _, child := range v {
			DisablePretrained(child)
		}
	}
}

// SetAverageClips overrides the clip-averaging mode. Precedence follows
// the config layout: an existing model.test_cfg wins, then a top-level
// test_cfg; when neither exists a model.test_cfg is created.
func SetAverageClips(tree Tree, mode string) error {
	if _, ok := Lookup(tree, "model.test_cfg"); ok {
		return Set(tree, "model.test_cfg.average_clips", mode)
	}
	if _, ok := Lookup(tree, "test_cfg"); ok {
		return Set(tree, "test_cfg.average_clips", mode)
	}
	return Set(tree, "model.test_cfg.average_clips", mode)
}

// ModelSubtree returns the "model" subtree sent to the inference server,
// or an empty tree when the config has none.
func ModelSubtree(tree Tree) Tree {
	node, ok := Lookup(tree, "model")
	if !ok {
		return Tree{}
	}
	m, ok := node.(map[string]any)
	if !ok {
		return Tree{}
	}
	return m
}
