package dialogue

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

type Dinner struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type StyleEntry struct {
	ID       Style    `yaml:"id"`
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Catalog is the closed vocabulary the script resolves dinners and styles
// against. Only entries with keywords are reachable without an interpreter.
type Catalog struct {
	Dinners []Dinner     `yaml:"dinners"`
	Styles  []StyleEntry `yaml:"styles"`
}

func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Dinners) == 0 {
		return errors.New("catalog: no dinners")
	}
	seen := make(map[string]bool, len(c.Dinners))
	for i, d := range c.Dinners {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("catalog: dinner %d has no name", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("catalog: duplicate dinner %q", d.Name)
		}
		seen[d.Name] = true
	}
	for _, s := range c.Styles {
		if !s.ID.Valid() {
			return fmt.Errorf("catalog: unknown style %q", s.ID)
		}
	}
	return nil
}

func (c *Catalog) HasDinner(name string) bool {
	for _, d := range c.Dinners {
		if d.Name == name {
			return true
		}
	}
	return false
}

func (c *Catalog) DinnerNames() []string {
	names := make([]string, len(c.Dinners))
	for i, d := range c.Dinners {
		names[i] = d.Name
	}
	return names
}

func (c *Catalog) matchDinner(normalized string) (string, bool) {
	for _, d := range c.Dinners {
		if containsAny(normalized, d.Keywords...) {
			return d.Name, true
		}
	}
	return "", false
}

func (c *Catalog) matchStyle(normalized string) (Style, bool) {
	for _, s := range c.Styles {
		if containsAny(normalized, s.Keywords...) {
			return s.ID, true
		}
	}
	return "", false
}

// StyleLabel returns the display label for s, falling back to its id.
func (c *Catalog) StyleLabel(s Style) string {
	for _, e := range c.Styles {
		if e.ID == s && e.Label != "" {
			return e.Label
		}
	}
	return string(s)
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if k = Normalize(k); k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}
