package catalog

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Metric is the live definition of one tracked quality metric.
type Metric struct {
	// Type keys into the data model's metric types.
	Type string `yaml:"type"`

	// Name is the human-readable metric name.
	Name string `yaml:"name"`

	// SubjectUUID and ReportUUID identify the metric's owners; they end up
	// in the audit delta of user edits.
	SubjectUUID string `yaml:"subject_uuid"`
	ReportUUID  string `yaml:"report_uuid"`

	// Direction is "<" when lower values are better (the default) and ">"
	// when higher values are better.
	Direction string `yaml:"direction"`

	// Per-scale target definitions. Keys are scale names from the data model.
	Target     map[string]string `yaml:"target"`
	NearTarget map[string]string `yaml:"near_target"`
	DebtTarget map[string]string `yaml:"debt_target"`

	// AcceptDebt is nil when the user never touched the debt toggle.
	// An explicit false immediately expires any accepted debt.
	AcceptDebt *bool `yaml:"accept_debt"`

	// DebtEndDate is an ISO date (YYYY-MM-DD); empty means no expiry by date.
	DebtEndDate string `yaml:"debt_end_date"`
}

// MetricType is one entry of the data model: the scales a metric type can be
// evaluated on and its default direction.
type MetricType struct {
	Name         string   `yaml:"name"`
	Scales       []string `yaml:"scales"`
	DefaultScale string   `yaml:"default_scale"`
	Direction    string   `yaml:"direction"`
}

// file is the on-disk YAML layout.
type file struct {
	DataModel struct {
		Metrics map[string]MetricType `yaml:"metrics"`
	} `yaml:"datamodel"`
	Metrics map[string]*Metric `yaml:"metrics"`
}

// Catalog is a thread-safe snapshot of the metric catalog and data model.
// Reload swaps the snapshot atomically; lookups always see a consistent view.
type Catalog struct {
	path string

	mu      sync.RWMutex
	metrics map[string]*Metric
	types   map[string]MetricType
}

// Load reads the catalog file at path.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog file. On error the previous snapshot stays
// active.
func (c *Catalog) Reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("catalog: read %q: %w", c.path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("catalog: parse yaml: %w", err)
	}
	if err := validate(&f); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	c.mu.Lock()
	c.metrics = f.Metrics
	c.types = f.DataModel.Metrics
	c.mu.Unlock()
	return nil
}

// validate checks structural constraints on the parsed catalog.
func validate(f *file) error {
	for uuid, m := range f.Metrics {
		if m == nil || m.Type == "" {
			return fmt.Errorf("metric %q has no type", uuid)
		}
		if _, ok := f.DataModel.Metrics[m.Type]; !ok {
			return fmt.Errorf("metric %q has unknown type %q", uuid, m.Type)
		}
		switch m.Direction {
		case "", "<", ">":
		default:
			return fmt.Errorf("metric %q direction %q unknown: want < or >", uuid, m.Direction)
		}
	}
	for name, mt := range f.DataModel.Metrics {
		if len(mt.Scales) == 0 {
			return fmt.Errorf("metric type %q declares no scales", name)
		}
	}
	return nil
}

// Metric returns the live definition of the metric with the given uuid.
// The second return value is false when the metric does not (or no longer)
// exist.
func (c *Catalog) Metric(uuid string) (*Metric, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.metrics[uuid]
	return m, ok
}

// Scales returns the scales applicable to the given metric type, or nil for
// an unknown type.
func (c *Catalog) Scales(metricType string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mt, ok := c.types[metricType]
	if !ok {
		return nil
	}
	return mt.Scales
}

// Direction returns the metric's comparison direction, falling back to the
// metric type's default and finally to "<" (lower is better).
func (c *Catalog) Direction(m *Metric) string {
	if m.Direction != "" {
		return m.Direction
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if mt, ok := c.types[m.Type]; ok && mt.Direction != "" {
		return mt.Direction
	}
	return "<"
}
