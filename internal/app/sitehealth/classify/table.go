// Package classify turns raw probe results into categorised, severity tagged
// audit records using a data driven lookup table.
package classify

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	regexp "github.com/wasilibs/go-re2"
	"gopkg.in/yaml.v3"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

//go:embed categories.yaml
var defaultTable []byte

// Table maps check identifiers to categories.
type Table struct {
	version    int
	fallback   sitehealth.Category
	scanOrder  []sitehealth.Category
	thresholds sitehealth.Thresholds
	aggregates map[string]sitehealth.Category
	aggOrder   []string
	rows       []row
}

type row struct {
	category sitehealth.Category
	ids      map[string]struct{}
	patterns []*regexp.Regexp
}

type tableFile struct {
	Version    int                   `yaml:"version"`
	Default    string                `yaml:"default"`
	ScanOrder  []string              `yaml:"scan_order"`
	Thresholds *sitehealth.Thresholds `yaml:"thresholds"`
	Aggregates yaml.Node             `yaml:"aggregates"`
	Categories []struct {
		Name     string   `yaml:"name"`
		IDs      []string `yaml:"ids"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"categories"`
}

// DefaultTable returns the embedded table.
func DefaultTable() (*Table, error) { return ParseTable(defaultTable) }

// LoadTable reads a table from path, or the embedded table when path is empty.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open category table: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read category table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes and validates a YAML table.
func ParseTable(data []byte) (*Table, error) {
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to decode category table: %w", err)
	}
	if tf.Version < 1 {
		return nil, errors.New("category table: version must be >= 1")
	}
	if tf.Default == "" {
		return nil, errors.New("category table: default category is required")
	}

	t := &Table{
		version:    tf.Version,
		fallback:   sitehealth.Category(tf.Default),
		thresholds: sitehealth.DefaultThresholds(),
		aggregates: make(map[string]sitehealth.Category),
	}
	if tf.Thresholds != nil {
		if tf.Thresholds.Warning > tf.Thresholds.Good {
			return nil, errors.New("category table: warning threshold exceeds good threshold")
		}
		t.thresholds = *tf.Thresholds
	}

	for _, c := range tf.ScanOrder {
		t.scanOrder = append(t.scanOrder, sitehealth.Category(c))
	}
	if len(t.scanOrder) == 0 {
		t.scanOrder = sitehealth.DefaultScanOrder()
	}

	// Aggregates are decoded from the node so key order is kept.
	if tf.Aggregates.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(tf.Aggregates.Content); i += 2 {
			key := tf.Aggregates.Content[i].Value
			t.aggregates[key] = sitehealth.Category(tf.Aggregates.Content[i+1].Value)
			t.aggOrder = append(t.aggOrder, key)
		}
	}

	for _, c := range tf.Categories {
		if c.Name == "" {
			return nil, errors.New("category table: category name is required")
		}
		r := row{category: sitehealth.Category(c.Name), ids: make(map[string]struct{}, len(c.IDs))}
		for _, id := range c.IDs {
			r.ids[id] = struct{}{}
		}
		for _, p := range c.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("category table: bad pattern %q for %s: %w", p, c.Name, err)
			}
			r.patterns = append(r.patterns, re)
		}
		t.rows = append(t.rows, r)
	}

	return t, nil
}

// Version is the table's declared version.
func (t *Table) Version() int { return t.version }

// ScanOrder is the order categories appear in a run's category state.
func (t *Table) ScanOrder() []sitehealth.Category {
	return append([]sitehealth.Category(nil), t.scanOrder...)
}

// Thresholds are the severity cut-offs.
func (t *Table) Thresholds() sitehealth.Thresholds { return t.thresholds }

// CategoryFor returns the category of a check identifier.
func (t *Table) CategoryFor(id string) sitehealth.Category {
	for _, r := range t.rows {
		if _, ok := r.ids[id]; ok {
			return r.category
		}
		for _, re := range r.patterns {
			if re.MatchString(id) {
				return r.category
			}
		}
	}
	return t.fallback
}

// AggregateCategory maps a top-level aggregate key to a category.
func (t *Table) AggregateCategory(key string) (sitehealth.Category, bool) {
	c, ok := t.aggregates[key]
	return c, ok
}

// aggregateRank orders aggregate keys as declared; unknown keys sort last.
func (t *Table) aggregateRank(key string) int {
	for i, k := range t.aggOrder {
		if k == key {
			return i
		}
	}
	return len(t.aggOrder)
}
