// Package manifest handles unit.toml configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/chazu/unitscript/model"
	"github.com/google/uuid"
)

// FileName is the manifest file looked up in a unit directory.
const FileName = "unit.toml"

// Manifest represents a unit.toml configuration.
type Manifest struct {
	Unit  Unit        `toml:"unit"`
	Run   Run         `toml:"run"`
	Log   Log         `toml:"log"`
	Store StoreConfig `toml:"store"`

	// Dir is the directory containing the unit.toml file (set at load time).
	Dir string `toml:"-"`
}

// Unit names the compiled script and describes the model it animates.
type Unit struct {
	ID     string  `toml:"id"` // optional UUID, stable across runs
	Name   string  `toml:"name"`
	Script string  `toml:"script"`
	Pieces []Piece `toml:"pieces"`
}

// Piece is one node of the model hierarchy. Parent names an earlier piece;
// empty means the root.
type Piece struct {
	Name   string     `toml:"name"`
	Parent string     `toml:"parent"`
	Offset [3]float64 `toml:"offset"`
}

// Run configures a simulation.
type Run struct {
	TickRate        float64  `toml:"tick-rate"`
	Ticks           int      `toml:"ticks"`
	Seed            int64    `toml:"seed"`
	MaxInstructions int      `toml:"max-instructions"`
	Start           []string `toml:"start"`
	Events          []Event  `toml:"events"`
}

// Event starts a script at a given tick.
type Event struct {
	Tick   int     `toml:"tick"`
	Script string  `toml:"script"`
	Params []int32 `toml:"params"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// StoreConfig configures the snapshot database.
type StoreConfig struct {
	Path string `toml:"path"`
}

// Load parses a unit.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes manifest text and applies defaults. Dir is left empty.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Unit.Name == "" {
		return nil, errors.New("unit.name is required")
	}
	if len(m.Unit.Pieces) == 0 {
		return nil, fmt.Errorf("unit %s declares no pieces", m.Unit.Name)
	}
	if m.Unit.ID != "" {
		if _, err := uuid.Parse(m.Unit.ID); err != nil {
			return nil, fmt.Errorf("unit %s: bad id: %w", m.Unit.Name, err)
		}
	}

	// Defaults
	if m.Unit.Script == "" {
		m.Unit.Script = m.Unit.Name + ".cob"
	}
	if m.Run.TickRate <= 0 {
		m.Run.TickRate = 30
	}
	if m.Run.Ticks <= 0 {
		m.Run.Ticks = int(m.Run.TickRate) * 10
	}
	if len(m.Run.Start) == 0 {
		m.Run.Start = []string{"Create"}
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a unit.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// UnitID returns the configured unit id, or a fresh one when none is set.
func (m *Manifest) UnitID() uuid.UUID {
	if id, err := uuid.Parse(m.Unit.ID); err == nil {
		return id
	}
	return uuid.New()
}

// ScriptPath returns the absolute path of the compiled script.
func (m *Manifest) ScriptPath() string {
	return m.resolve(m.Unit.Script)
}

// StorePath returns the absolute path of the snapshot database, or "" when
// snapshots are disabled.
func (m *Manifest) StorePath() string {
	if m.Store.Path == "" {
		return ""
	}
	return m.resolve(m.Store.Path)
}

// LogPath returns the absolute log file path, or nil for stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.resolve(m.Log.File)
	return &path
}

func (m *Manifest) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.Dir, path)
}

// TickDelta returns the duration of one tick in seconds.
func (m *Manifest) TickDelta() float64 {
	return 1 / m.Run.TickRate
}

// EventsAt returns the events scheduled for tick.
func (m *Manifest) EventsAt(tick int) []Event {
	var out []Event
	for _, e := range m.Run.Events {
		if e.Tick == tick {
			out = append(out, e)
		}
	}
	return out
}

// Model builds the piece hierarchy.
func (m *Manifest) Model() (*model.Model, error) {
	index := make(map[string]int, len(m.Unit.Pieces))
	pieces := make([]model.Piece, len(m.Unit.Pieces))
	for i, p := range m.Unit.Pieces {
		parent := -1
		if p.Parent != "" {
			j, ok := index[strings.ToLower(p.Parent)]
			if !ok {
				return nil, fmt.Errorf("piece %s: parent %q must be declared before it", p.Name, p.Parent)
			}
			parent = j
		}
		pieces[i] = model.Piece{Name: p.Name, Parent: parent, Offset: model.Vector3(p.Offset)}
		index[strings.ToLower(p.Name)] = i
	}
	return model.New(pieces)
}
