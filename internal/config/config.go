// Package config resolves engine configuration from environment, an
// optional .env file, command-line flags, and optional YAML override
// files for the kinetic graph and pattern weight table.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/cartomix/choreo/internal/kinetic"
	"github.com/cartomix/choreo/internal/pattern"
)

// Config holds everything cmd/engine needs to start the service.
type Config struct {
	// Server settings
	Port     int
	DataDir  string
	LogLevel string

	// Engine settings
	AutoAdvanceMode string // "kinetic" or "pattern"

	// Auth settings
	AuthEnabled bool

	// KineticGraph is the validated movement-node graph resolved at
	// startup. Defaults to kinetic.NewGraph(); overridden when
	// -kinetic-graph points at a valid YAML file. The engine builds its
	// own default graph and does not read this field.
	KineticGraph *kinetic.Graph

	// PatternWeights holds the per-pattern weights read from
	// -pattern-weights, or nil when none are given. The pattern
	// sequencer picks uniformly and does not read this field.
	PatternWeights map[pattern.Name]float64
}

// Parse loads an optional .env file, then flags (flags win over
// environment variables; a variable already set in the environment wins
// over the same key in the .env file), then optional YAML overrides, and
// returns the resolved Config.
func Parse() *Config {
	_ = godotenv.Load() // optional; missing .env is not an error

	cfg := &Config{}

	var kineticGraphPath, patternWeightsPath string

	flag.IntVar(&cfg.Port, "port", 8080, "HTTP server port")
	flag.StringVar(&cfg.DataDir, "data-dir", defaultDataDir(), "data directory for SQLite and blobs")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.AutoAdvanceMode, "mode", "kinetic", "initial engine mode (kinetic or pattern)")
	flag.BoolVar(&cfg.AuthEnabled, "auth", false, "enable API authentication (default: open for local use)")
	flag.StringVar(&kineticGraphPath, "kinetic-graph", "", "optional YAML override for the kinetic movement graph")
	flag.StringVar(&patternWeightsPath, "pattern-weights", "", "optional YAML override for pattern selection weights")

	flag.Parse()

	graph, err := loadKineticGraph(kineticGraphPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v, falling back to built-in kinetic graph\n", err)
		graph = kinetic.NewGraph()
	}
	cfg.KineticGraph = graph

	weights, err := loadPatternWeights(patternWeightsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v, falling back to uniform pattern weights\n", err)
		weights = nil
	}
	cfg.PatternWeights = weights

	return cfg
}

func defaultDataDir() string {
	if dir := os.Getenv("CHOREO_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".choreo"
	}
	return home + "/.choreo"
}

// kineticNodeOverride mirrors kinetic.Node with yaml tags; it exists
// only as a decode target, converted to *kinetic.Node immediately
// after unmarshaling.
type kineticNodeOverride struct {
	ID             string   `yaml:"id"`
	EnergyRequired float64  `yaml:"energy_required"`
	ExitThreshold  float64  `yaml:"exit_threshold"`
	MinDurationMs  float64  `yaml:"min_duration_ms"`
	Neighbors      []string `yaml:"neighbors"`
	MechanicalFx   []string `yaml:"mechanical_fx"`
}

// loadKineticGraph reads a node-list YAML override and validates it
// into a *kinetic.Graph. An empty path returns the built-in default.
func loadKineticGraph(path string) (*kinetic.Graph, error) {
	if path == "" {
		return kinetic.NewGraph(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read kinetic graph override %s: %w", path, err)
	}

	var overrides []kineticNodeOverride
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse kinetic graph override %s: %w", path, err)
	}

	nodes := make([]*kinetic.Node, 0, len(overrides))
	for _, o := range overrides {
		neighbors := make([]kinetic.NodeID, 0, len(o.Neighbors))
		for _, n := range o.Neighbors {
			neighbors = append(neighbors, kinetic.NodeID(n))
		}
		nodes = append(nodes, &kinetic.Node{
			ID:             kinetic.NodeID(o.ID),
			EnergyRequired: o.EnergyRequired,
			ExitThreshold:  o.ExitThreshold,
			MinDurationMs:  o.MinDurationMs,
			Neighbors:      neighbors,
			MechanicalFx:   o.MechanicalFx,
		})
	}

	graph, err := kinetic.NewGraphFromNodes(nodes)
	if err != nil {
		return nil, fmt.Errorf("kinetic graph override %s: %w", path, err)
	}
	return graph, nil
}

// loadPatternWeights reads a name->weight YAML map. An empty path
// returns a nil map, meaning "uniform weights, no override".
func loadPatternWeights(path string) (map[pattern.Name]float64, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern weights override %s: %w", path, err)
	}

	var raw map[string]float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse pattern weights override %s: %w", path, err)
	}

	weights := make(map[pattern.Name]float64, len(raw))
	for name, w := range raw {
		weights[pattern.Name(name)] = w
	}
	return weights, nil
}
