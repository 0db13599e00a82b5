// Copyright 2026 CoreOS, Inc.
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

// Package yamlsubset parses the bounded YAML subset that playbook
// output files are allowed to use. Rather than a hand-rolled lexer it
// decodes with gopkg.in/yaml.v3's low-level yaml.Node API and walks the
// resulting tree enforcing the subset, since yaml.v3's high-level
// Unmarshal silently accepts anchors, aliases, and tags that this
// format must reject.
package yamlsubset

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coreosfleet/deployer/internal/errs"
)

// MaxDocumentSize is the hard cap on raw input size before decoding.
const MaxDocumentSize = 1 << 20 // 1 MiB

// MaxDepth is the hard cap on mapping/sequence nesting.
const MaxDepth = 8

// Document is a parsed OutputPayload: a generic tree whose scalar
// leaves are string, bool, or int64, whose sequences are []any, and
// whose mappings are map[string]any reached in declaration order via
// Keys.
type Document struct {
	Values map[string]any
}

// Status returns the top-level "status" key, or "" if absent or not a
// string.
func (d Document) Status() string {
	s, _ := d.Values["status"].(string)
	return s
}

// Parse decodes data as the bounded YAML subset, rejecting anything
// outside it with MalformedOutput.
func Parse(data []byte) (Document, error) {
	if len(data) > MaxDocumentSize {
		return Document{}, errs.New(errs.MalformedOutput, "yamlsubset.Parse",
			fmt.Errorf("document size %d exceeds %d byte cap", len(data), MaxDocumentSize))
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	var root yaml.Node
	if err := dec.Decode(&root); err != nil {
		return Document{}, errs.New(errs.MalformedOutput, "yamlsubset.Parse", err)
	}

	// A second successful Decode means a second document: multi-doc
	// streams are rejected outright.
	var second yaml.Node
	if err := dec.Decode(&second); err == nil {
		return Document{}, errs.New(errs.MalformedOutput, "yamlsubset.Parse",
			fmt.Errorf("multi-document streams are not supported"))
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 {
		return Document{}, errs.New(errs.MalformedOutput, "yamlsubset.Parse",
			fmt.Errorf("empty document"))
	}
	mapping := root.Content[0]

	value, err := walk(mapping, 1)
	if err != nil {
		return Document{}, err
	}
	top, ok := value.(map[string]any)
	if !ok {
		return Document{}, errs.New(errs.MalformedOutput, "yamlsubset.Parse",
			fmt.Errorf("top-level document must be a mapping"))
	}
	if _, ok := top["status"]; !ok {
		return Document{}, errs.New(errs.MalformedOutput, "yamlsubset.Parse",
			fmt.Errorf(`top-level mapping must contain a "status" key`))
	}

	return Document{Values: top}, nil
}

func walk(n *yaml.Node, depth int) (any, error) {
	if depth > MaxDepth {
		return nil, errs.New(errs.MalformedOutput, "yamlsubset.walk",
			fmt.Errorf("nesting depth %d exceeds maximum %d", depth, MaxDepth))
	}
	if n.Anchor != "" || n.Kind == yaml.AliasNode {
		return nil, errs.New(errs.MalformedOutput, "yamlsubset.walk",
			fmt.Errorf("anchors and aliases are not supported"))
	}
	if !allowedTag(n.Tag) {
		return nil, errs.New(errs.MalformedOutput, "yamlsubset.walk",
			fmt.Errorf("unsupported tag %q", n.Tag))
	}
	if n.Style&(yaml.LiteralStyle|yaml.FoldedStyle) != 0 {
		return nil, errs.New(errs.MalformedOutput, "yamlsubset.walk",
			fmt.Errorf("literal/folded block scalars are not supported"))
	}

	switch n.Kind {
	case yaml.ScalarNode:
		return scalarValue(n), nil
	case yaml.SequenceNode:
		seq := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := walk(c, depth+1)
			if err != nil {
				return nil, err
			}
			seq = append(seq, v)
		}
		return seq, nil
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		seen := make(map[string]bool, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valNode := n.Content[i], n.Content[i+1]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, errs.New(errs.MalformedOutput, "yamlsubset.walk",
					fmt.Errorf("complex mapping keys are not supported"))
			}
			key := strings.TrimSpace(keyNode.Value)
			if seen[key] {
				return nil, errs.New(errs.MalformedOutput, "yamlsubset.walk",
					fmt.Errorf("duplicate key %q", key))
			}
			seen[key] = true
			v, err := walk(valNode, depth+1)
			if err != nil {
				return nil, err
			}
			m[key] = v
		}
		return m, nil
	default:
		return nil, errs.New(errs.MalformedOutput, "yamlsubset.walk",
			fmt.Errorf("unsupported node kind %v", n.Kind))
	}
}

func allowedTag(tag string) bool {
	switch tag {
	case "", "!!str", "!!int", "!!float", "!!bool", "!!null", "!!seq", "!!map":
		return true
	default:
		return false
	}
}

func scalarValue(n *yaml.Node) any {
	switch n.Tag {
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err == nil {
			return b
		}
	case "!!int":
		i, err := strconv.ParseInt(n.Value, 10, 64)
		if err == nil {
			return i
		}
	}
	return n.Value
}
