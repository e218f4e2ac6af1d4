package template

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/twinsync-io/twinsync/internal/twin"
)

// ThingTemplate is the desired declared sub-state of a sensor facet
// Thing. Definition maps preserve document order so newly synced
// entries append in template order.
type ThingTemplate struct {
	Synthetics     twin.OrderedMap[Synthetic] `yaml:"synthetics"`
	Reconciliation Reconciliation             `yaml:"reconciliation"`
}

// Reconciliation declares the handler and timer registries.
type Reconciliation struct {
	Changed  twin.OrderedMap[Code]     `yaml:"changed"`
	Deleting twin.OrderedMap[Code]     `yaml:"deleting"`
	Timers   twin.OrderedMap[TimerDef] `yaml:"timers"`
}

// Synthetic defines one synthetic feature: either a script or an alias
// for another property. Exactly one field is set.
type Synthetic struct {
	JavaScript *Source `yaml:"javaScript"`
	Alias      string  `yaml:"alias"`
}

// Type converts the definition to the twin model representation.
func (s Synthetic) Type() twin.SyntheticType {
	if s.JavaScript != nil {
		return twin.SyntheticType{JavaScript: s.JavaScript.Content}
	}
	return twin.SyntheticType{Alias: s.Alias}
}

// Code defines one scripted handler.
type Code struct {
	JavaScript Source `yaml:"javaScript"`
}

// Type converts the definition to the twin model representation.
func (c Code) Type() twin.Code {
	return twin.Code{JavaScript: c.JavaScript.Content}
}

// TimerDef defines one timer: a script plus its period.
type TimerDef struct {
	Code   Code          `yaml:"code"`
	Period twin.Duration `yaml:"period"`
}

// Source is script content given either inline as a string or as an
// object with a path field referencing an external file. File
// references are resolved during template load, relative to the
// template document; failure to read one is a load error.
type Source struct {
	Content string

	// path is retained only between parse and resolve.
	path string
}

// UnmarshalYAML implements yaml.Unmarshaler for both source forms.
func (s *Source) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&s.Content)
	}

	var ref struct {
		Path string `yaml:"path"`
	}
	if err := node.Decode(&ref); err != nil {
		return fmt.Errorf("template: source must be a string or {path: ...}: %w", err)
	}
	if ref.Path == "" {
		return fmt.Errorf("template: source file reference at line %d has no path", node.Line)
	}
	s.path = ref.Path
	return nil
}

// resolve reads the referenced file if the source is a file reference.
func (s *Source) resolve(baseDir string) error {
	if s.path == "" {
		return nil
	}
	path := s.path
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("template: reading script source %q: %w", s.path, err)
	}
	s.Content = string(data)
	s.path = ""
	return nil
}

// Load reads and resolves the template document at path.
//
// Every file-referenced script source is read eagerly; any failure is
// returned and should be treated as fatal at startup.
func Load(path string) (*ThingTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("template: reading %q: %w", path, err)
	}

	var tmpl ThingTemplate
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("template: parsing %q: %w", path, err)
	}

	if err := tmpl.resolveSources(filepath.Dir(path)); err != nil {
		return nil, err
	}

	return &tmpl, nil
}

// resolveSources walks every definition and resolves file references.
func (t *ThingTemplate) resolveSources(baseDir string) error {
	for _, name := range t.Synthetics.Keys() {
		syn, _ := t.Synthetics.Get(name)
		if syn.JavaScript == nil {
			continue
		}
		if err := syn.JavaScript.resolve(baseDir); err != nil {
			return fmt.Errorf("synthetic %q: %w", name, err)
		}
		t.Synthetics.Set(name, syn)
	}

	for _, reg := range []*twin.OrderedMap[Code]{&t.Reconciliation.Changed, &t.Reconciliation.Deleting} {
		for _, name := range reg.Keys() {
			code, _ := reg.Get(name)
			if err := code.JavaScript.resolve(baseDir); err != nil {
				return fmt.Errorf("handler %q: %w", name, err)
			}
			reg.Set(name, code)
		}
	}

	for _, name := range t.Reconciliation.Timers.Keys() {
		timer, _ := t.Reconciliation.Timers.Get(name)
		if err := timer.Code.JavaScript.resolve(baseDir); err != nil {
			return fmt.Errorf("timer %q: %w", name, err)
		}
		t.Reconciliation.Timers.Set(name, timer)
	}

	return nil
}
