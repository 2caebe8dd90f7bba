// Package config loads intersection controller configuration from a
// directory of TOML files, mirroring the reference implementation's
// layout: general.toml, io.toml, protocols.toml, groups.toml,
// blocks.toml, traffic_lights.toml, and bridge.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/nugget/intersection-controller/internal/intersections"
)

// searchPathsFunc is overridden in tests to avoid finding real config
// directories on developer/deploy machines.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config directory search order. An
// explicit path (from -configdir) is checked first by FindConfigDir;
// these are the fallbacks.
func DefaultSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "intersectiond"))
	}

	paths = append(paths, "/config")       // container convention
	paths = append(paths, "/etc/intersectiond")
	return paths
}

// FindConfigDir locates a directory containing general.toml. If
// explicit is non-empty, it must contain general.toml. Otherwise,
// searches searchPathsFunc() and returns the first candidate that
// qualifies.
func FindConfigDir(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(filepath.Join(explicit, "general.toml")); err != nil {
			return "", fmt.Errorf("config dir %s: general.toml not found", explicit)
		}
		return explicit, nil
	}

	for _, dir := range searchPathsFunc() {
		if _, err := os.Stat(filepath.Join(dir, "general.toml")); err == nil {
			return dir, nil
		}
	}

	return "", fmt.Errorf("no config directory found (searched: %v)", searchPathsFunc())
}

// MqConnection describes one side (publisher or subscriber) of the
// broker connection.
type MqConnection struct {
	ClientID string `toml:"client_id"`
	Host     string `toml:"host"`
	Protocol string `toml:"protocol"`
	QoS      int    `toml:"qos"`
}

// IO holds the publisher and subscriber broker connections.
type IO struct {
	Publisher  MqConnection `toml:"publisher"`
	Subscriber MqConnection `toml:"subscriber"`
}

// General holds team-wide identity.
type General struct {
	TeamID int `toml:"team_id"`
}

// Protocol names a transport and the port it listens on.
type Protocol struct {
	Name string `toml:"name"`
	Port int    `toml:"port"`
}

// Protocols is the full named-protocol table, resolved by name when
// building the broker connection URL.
type Protocols struct {
	Protocols []Protocol `toml:"protocols"`
}

// Port looks up a protocol by name.
func (p Protocols) Port(name string) (int, bool) {
	for _, proto := range p.Protocols {
		if proto.Name == name {
			return proto.Port, true
		}
	}
	return 0, false
}

// GroupTiming holds the per-kind minimum phase durations the
// TrafficLightsRunner schedules with.
type GroupTiming struct {
	Kind              string `toml:"kind"`
	MinGoTime         int    `toml:"min_go_time"`
	MinTransitionTime int    `toml:"min_transition_time"`
}

// Groups is the full per-kind timing table.
type Groups struct {
	Groups []GroupTiming `toml:"groups"`
}

// Timing looks up the raw timing parameters for a group kind.
func (g Groups) Timing(kind intersections.GroupKind) (GroupTiming, bool) {
	for _, t := range g.Groups {
		parsed, err := intersections.ParseGroupKind(t.Kind)
		if err == nil && parsed == kind {
			return t, true
		}
	}
	return GroupTiming{}, false
}

// Duration satisfies trafficlights.Timing: it looks up a group kind's
// minimum go/transition times and converts them from config seconds
// to time.Duration.
func (g Groups) Duration(kind intersections.GroupKind) (minGo, minTransition time.Duration, ok bool) {
	t, found := g.Timing(kind)
	if !found {
		return 0, 0, false
	}
	return time.Duration(t.MinGoTime) * time.Second, time.Duration(t.MinTransitionTime) * time.Second, true
}

// Block names one group that conflicts with the owning Group entry.
type Block struct {
	Kind string `toml:"kind"`
	ID   int    `toml:"id"`
}

// BlockGroup is one group's conflict list.
type BlockGroup struct {
	Blocks []Block `toml:"blocks"`
	Kind   string  `toml:"kind"`
	ID     int     `toml:"id"`
}

// Blocks is the whole conflict table for one intersection.
type Blocks struct {
	Groups []BlockGroup `toml:"groups"`
}

// ToBlockDefs flattens the conflict table into BlockDef pairs.
func (b Blocks) ToBlockDefs() ([]intersections.BlockDef, error) {
	var out []intersections.BlockDef
	for _, bg := range b.Groups {
		kind, err := intersections.ParseGroupKind(bg.Kind)
		if err != nil {
			return nil, err
		}
		a := intersections.GroupId{Kind: kind, ID: bg.ID}
		for _, blk := range bg.Blocks {
			bkind, err := intersections.ParseGroupKind(blk.Kind)
			if err != nil {
				return nil, err
			}
			out = append(out, intersections.BlockDef{
				A: a,
				B: intersections.GroupId{Kind: bkind, ID: blk.ID},
			})
		}
	}
	return out, nil
}

// Component describes one sensor or actuator in a Definitions file.
type Component struct {
	Kind         string `toml:"kind"`
	ID           int    `toml:"id"`
	Alias        string `toml:"alias"`
	Distance     int    `toml:"distance"`
	DefaultState int    `toml:"default_state"`
}

// DefGroup describes one group and its components in a Definitions file.
type DefGroup struct {
	Kind         string      `toml:"kind"`
	ID           int         `toml:"id"`
	Alias        string      `toml:"alias"`
	CanBeBlocked bool        `toml:"can_be_blocked"`
	Components   []Component `toml:"components"`
}

// Definitions is the full set of groups (and their components) for
// one intersection: the traffic-lights side or the bridge side.
type Definitions struct {
	Groups []DefGroup `toml:"groups"`
}

// ToGroupDefs converts the TOML definitions into the Builder's input
// shape, resolving kind strings to their typed enums.
func (d Definitions) ToGroupDefs() ([]intersections.GroupDef, error) {
	out := make([]intersections.GroupDef, 0, len(d.Groups))
	for _, g := range d.Groups {
		kind, err := intersections.ParseGroupKind(g.Kind)
		if err != nil {
			return nil, err
		}

		components := make([]intersections.ComponentDef, 0, len(g.Components))
		for _, c := range g.Components {
			ckind, err := intersections.ParseComponentKind(c.Kind)
			if err != nil {
				return nil, err
			}
			components = append(components, intersections.ComponentDef{
				Kind:         ckind,
				ID:           c.ID,
				Alias:        c.Alias,
				Distance:     c.Distance,
				DefaultState: c.DefaultState,
			})
		}

		out = append(out, intersections.GroupDef{
			Kind:         kind,
			ID:           g.ID,
			Alias:        g.Alias,
			CanBeBlocked: g.CanBeBlocked,
			Components:   components,
		})
	}
	return out, nil
}

// Config aggregates every TOML file the controller reads at startup
// at startup.
type Config struct {
	General            General
	IO                 IO
	Protocols          Protocols
	Groups             Groups
	TrafficLightsBlocks Blocks
	TrafficLights      Definitions
	Bridge             Definitions
	LogLevel           string
}

func loadTOML(dir, name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := toml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

// Load reads every config file from dir, applies defaults, and
// validates the result. After Load returns successfully, all fields
// are usable without additional nil/zero checks.
func Load(dir string) (*Config, error) {
	cfg := &Config{}

	if err := loadTOML(dir, "general.toml", &cfg.General); err != nil {
		return nil, err
	}
	if err := loadTOML(dir, "io.toml", &cfg.IO); err != nil {
		return nil, err
	}
	if err := loadTOML(dir, "protocols.toml", &cfg.Protocols); err != nil {
		return nil, err
	}
	if err := loadTOML(dir, "groups.toml", &cfg.Groups); err != nil {
		return nil, err
	}
	if err := loadTOML(dir, "blocks.toml", &cfg.TrafficLightsBlocks); err != nil {
		return nil, err
	}
	if err := loadTOML(dir, "traffic_lights.toml", &cfg.TrafficLights); err != nil {
		return nil, err
	}
	if err := loadTOML(dir, "bridge.toml", &cfg.Bridge); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.IO.Publisher.QoS == 0 {
		c.IO.Publisher.QoS = 1
	}
	if c.IO.Subscriber.QoS == 0 {
		c.IO.Subscriber.QoS = 1
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks that the configuration is internally consistent. It
// runs after applyDefaults, so it can assume defaults are populated.
func (c *Config) Validate() error {
	if c.General.TeamID <= 0 {
		return fmt.Errorf("general.team_id must be positive")
	}
	if c.IO.Publisher.Host == "" {
		return fmt.Errorf("io.publisher.host must not be empty")
	}
	if c.IO.Subscriber.Host == "" {
		return fmt.Errorf("io.subscriber.host must not be empty")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
