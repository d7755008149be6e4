/*
Package factory provides task catalog file to Go conversion.

PURPOSE:
  Converts a task catalog (JSON or YAML) into engine.Task values. Prices
  change every season; keeping them in a file lets the office update the
  table without a release.

FILE SCHEMA (YAML):
  tasks:
    - id: 1
      price: "5.00"
      category: recolte
      description: cueillette agrumes (caisse)

FILE SCHEMA (JSON):
  {"tasks": [{"id": 1, "price": 5.00, "category": "recolte", "description": "..."}]}

  A bare top-level list of tasks is accepted in both formats.

KEY FEATURES:
  - Prices are parsed as exact decimals, quoted or not
  - Rejects duplicate ids, negative prices, missing prices
  - Falls back to farm.StandardCatalogYAML when no file is configured

USAGE:
  f := NewCatalogFactory()
  tasks, err := f.LoadFile("tasks.yaml")   // "" loads the standard catalog

SEE ALSO:
  - farm/catalog.go: the standard catalog
  - engine/types.go: Task, PriceTable
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/harvest-payroll/engine"
	"github.com/warp/harvest-payroll/farm"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// FILE SCHEMA TYPES
// =============================================================================

// TaskJSON is the file representation of a task.
type TaskJSON struct {
	ID          int       `json:"id" yaml:"id"`
	Price       PriceText `json:"price" yaml:"price"`
	Category    string    `json:"category" yaml:"category"`
	Description string    `json:"description" yaml:"description"`
}

// CatalogJSON is the file representation of a catalog.
type CatalogJSON struct {
	Tasks []TaskJSON `json:"tasks" yaml:"tasks"`
}

// PriceText holds a price as written in the file, so JSON numbers and
// strings are both read without going through float64.
type PriceText string

func (p *PriceText) UnmarshalJSON(b []byte) error {
	*p = PriceText(strings.Trim(string(b), `"`))
	return nil
}

// Format names a catalog file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// =============================================================================
// FACTORY
// =============================================================================

// CatalogFactory creates task price tables from catalog files.
type CatalogFactory struct{}

func NewCatalogFactory() *CatalogFactory {
	return &CatalogFactory{}
}

// LoadFile reads a catalog file, choosing the format from its extension.
// An empty path loads the standard catalog.
func (f *CatalogFactory) LoadFile(path string) ([]engine.Task, error) {
	if path == "" {
		return f.Standard()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task catalog: %w", err)
	}
	return f.Parse(data, FormatFor(path, data))
}

// Standard returns the estate's default catalog.
func (f *CatalogFactory) Standard() ([]engine.Task, error) {
	return f.ParseYAML([]byte(farm.StandardCatalogYAML))
}

func (f *CatalogFactory) Parse(data []byte, format Format) ([]engine.Task, error) {
	switch format {
	case FormatJSON:
		return f.ParseJSON(data)
	case FormatYAML:
		return f.ParseYAML(data)
	default:
		return nil, fmt.Errorf("unknown catalog format: %s", format)
	}
}

func (f *CatalogFactory) ParseJSON(data []byte) ([]engine.Task, error) {
	var cj CatalogJSON
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &cj.Tasks); err != nil {
			return nil, fmt.Errorf("invalid catalog JSON: %w", err)
		}
	} else if err := json.Unmarshal(trimmed, &cj); err != nil {
		return nil, fmt.Errorf("invalid catalog JSON: %w", err)
	}
	return f.FromJSON(cj)
}

func (f *CatalogFactory) ParseYAML(data []byte) ([]engine.Task, error) {
	var cj CatalogJSON
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("invalid catalog YAML: %w", err)
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		if err := node.Content[0].Decode(&cj.Tasks); err != nil {
			return nil, fmt.Errorf("invalid catalog YAML: %w", err)
		}
	} else if err := node.Decode(&cj); err != nil {
		return nil, fmt.Errorf("invalid catalog YAML: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON validates a decoded catalog and converts it, sorted by id.
func (f *CatalogFactory) FromJSON(cj CatalogJSON) ([]engine.Task, error) {
	seen := make(map[int]bool, len(cj.Tasks))
	tasks := make([]engine.Task, 0, len(cj.Tasks))
	for _, tj := range cj.Tasks {
		if seen[tj.ID] {
			return nil, fmt.Errorf("duplicate task id %d", tj.ID)
		}
		seen[tj.ID] = true

		if strings.TrimSpace(string(tj.Price)) == "" {
			return nil, fmt.Errorf("task %d: price is required", tj.ID)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(string(tj.Price)))
		if err != nil {
			return nil, fmt.Errorf("task %d: invalid price %q: %w", tj.ID, tj.Price, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("task %d: price cannot be negative", tj.ID)
		}
		tasks = append(tasks, engine.Task{
			ID:          engine.TaskID(tj.ID),
			Price:       price,
			Category:    tj.Category,
			Description: tj.Description,
		})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// ToJSON converts tasks back to the file representation.
func (f *CatalogFactory) ToJSON(tasks []engine.Task) CatalogJSON {
	cj := CatalogJSON{Tasks: make([]TaskJSON, 0, len(tasks))}
	for _, t := range tasks {
		cj.Tasks = append(cj.Tasks, TaskJSON{
			ID:          int(t.ID),
			Price:       PriceText(t.Price.StringFixed(2)),
			Category:    t.Category,
			Description: t.Description,
		})
	}
	return cj
}

// =============================================================================
// HELPERS
// =============================================================================

// FormatFor picks the format from the file extension, falling back to
// sniffing the first non-space byte.
func FormatFor(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}
