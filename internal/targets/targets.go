// Package targets reads population target distributions from files and flags.
//
// Two file layouts are accepted, in YAML or JSON. The list layout:
//
//	targets:
//	  - variable: gender
//	    categories:
//	      - {category: M, proportion: 0.49}
//	      - {category: F, proportion: 0.51}
//
// and the mapping shorthand, where declaration order is kept:
//
//	gender: {M: 0.49, F: 0.51}
//	region: {North: 0.25, South: 0.75}
package targets

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/surveykit/raking/core/rake"
)

// ErrInvalidTargets is returned for target files or flags that cannot be read.
var ErrInvalidTargets = errors.New("invalid targets")

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
}

// fileTarget is one entry of the list layout.
type fileTarget struct {
	Variable   string         `yaml:"variable" validate:"required"`
	Categories []fileCategory `yaml:"categories" validate:"required,min=1,dive"`
}

type fileCategory struct {
	Category   string  `yaml:"category" validate:"required"`
	Proportion float64 `yaml:"proportion" validate:"finite,gte=0"`
}

// LoadFile reads targets from a YAML or JSON file.
func LoadFile(path string) ([]rake.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return Parse(data)
}

// Parse decodes a target document in either layout.
func Parse(data []byte) ([]rake.Target, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTargets, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: document is empty", ErrInvalidTargets)
	}

	root := doc.Content[0]
	if root.Kind == yaml.MappingNode {
		if v := mappingValue(root, "targets"); v != nil {
			root = v
		}
	}

	var entries []fileTarget
	var err error
	switch root.Kind {
	case yaml.SequenceNode:
		err = root.Decode(&entries)
	case yaml.MappingNode:
		entries, err = decodeShorthand(root)
	default:
		err = fmt.Errorf("line %d: expected a list or mapping of targets", root.Line)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTargets, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no targets declared", ErrInvalidTargets)
	}

	out := make([]rake.Target, 0, len(entries))
	for i, e := range entries {
		if err := validate.Struct(e); err != nil {
			return nil, fmt.Errorf("%w: target #%d: %v", ErrInvalidTargets, i+1, describe(err))
		}
		t := rake.Target{Variable: e.Variable, Categories: make([]rake.CategoryTarget, len(e.Categories))}
		for j, c := range e.Categories {
			t.Categories[j] = rake.CategoryTarget{Category: c.Category, Proportion: c.Proportion}
		}
		out = append(out, t)
	}
	return out, nil
}

// decodeShorthand reads variable -> (category -> proportion) mappings in
// document order. A variable may also hold a list of category entries.
func decodeShorthand(node *yaml.Node) ([]fileTarget, error) {
	entries := make([]fileTarget, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		entry := fileTarget{Variable: key.Value}

		switch value.Kind {
		case yaml.MappingNode:
			for j := 0; j+1 < len(value.Content); j += 2 {
				var p float64
				if err := value.Content[j+1].Decode(&p); err != nil {
					return nil, fmt.Errorf("line %d: proportion of %s/%s: %v", value.Content[j+1].Line, key.Value, value.Content[j].Value, err)
				}
				entry.Categories = append(entry.Categories, fileCategory{Category: value.Content[j].Value, Proportion: p})
			}
		case yaml.SequenceNode:
			if err := value.Decode(&entry.Categories); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("line %d: variable %q must map categories to proportions", value.Line, key.Value)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// ParseInline reads a flag value of the form "gender=M:0.49,F:0.51".
// A trailing percent sign divides the value by 100.
func ParseInline(spec string) (rake.Target, error) {
	name, body, ok := strings.Cut(spec, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return rake.Target{}, fmt.Errorf("%w: %q: expected variable=category:proportion,...", ErrInvalidTargets, spec)
	}

	t := rake.Target{Variable: name}
	for part := range strings.SplitSeq(body, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i := strings.LastIndex(part, ":")
		if i <= 0 {
			return rake.Target{}, fmt.Errorf("%w: %q: expected category:proportion", ErrInvalidTargets, part)
		}
		cat := strings.TrimSpace(part[:i])
		raw := strings.TrimSpace(part[i+1:])
		scale := 1.0
		if strings.HasSuffix(raw, "%") {
			raw = strings.TrimSuffix(raw, "%")
			scale = 100
		}
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return rake.Target{}, fmt.Errorf("%w: %q: %v", ErrInvalidTargets, part, err)
		}
		t.Categories = append(t.Categories, rake.CategoryTarget{Category: cat, Proportion: p / scale})
	}
	if len(t.Categories) == 0 {
		return rake.Target{}, fmt.Errorf("%w: %q declares no categories", ErrInvalidTargets, spec)
	}
	return t, nil
}

// Resolve loads the target file, if any, then applies inline specs. An
// inline spec for a variable already in the file replaces it in place.
func Resolve(path string, inline []string) ([]rake.Target, error) {
	var out []rake.Target
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		out = loaded
	}

	for _, spec := range inline {
		t, err := ParseInline(spec)
		if err != nil {
			return nil, err
		}
		replaced := false
		for i := range out {
			if out[i].Variable == t.Variable {
				out[i] = t
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, t)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: provide --targets or at least one --target", ErrInvalidTargets)
	}
	return out, nil
}

// Marshal writes targets in the list layout.
func Marshal(targets []rake.Target) ([]byte, error) {
	return yaml.Marshal(struct {
		Targets []rake.Target `yaml:"targets"`
	}{targets})
}
