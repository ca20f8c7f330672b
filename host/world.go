package host

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/chazu/unitscript/cob"
	"github.com/chazu/unitscript/manifest"
	"github.com/chazu/unitscript/model"
	"github.com/chazu/unitscript/store"
	"github.com/chazu/unitscript/unitscript"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

// ---------------------------------------------------------------------------
// Units
// ---------------------------------------------------------------------------

// Unit is one scripted model in the world.
type Unit struct {
	ID       uuid.UUID
	Name     string
	Manifest *manifest.Manifest // nil for units built in code
	Script   *cob.Script
	Model    *model.Model
	Pose     *model.Instance
	Context  *unitscript.Context

	host unitHost
}

// unitHost is what a unit's scripts see of the world.
type unitHost struct {
	*Clock
	*effects
}

// NewUnit binds script to m. The unit does not run until added to a World.
func NewUnit(id uuid.UUID, name string, script *cob.Script, m *model.Model, opts ...unitscript.Option) (*Unit, error) {
	c, err := unitscript.New(script, m, opts...)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", name, err)
	}
	return &Unit{
		ID:      id,
		Name:    name,
		Script:  script,
		Model:   m,
		Pose:    model.NewInstance(m),
		Context: c,
	}, nil
}

// LoadUnit reads the script and model a manifest describes.
func LoadUnit(m *manifest.Manifest) (*Unit, error) {
	data, err := os.ReadFile(m.ScriptPath())
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", m.Unit.Name, err)
	}
	script, err := cob.Load(data)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %s: %w", m.Unit.Name, m.ScriptPath(), err)
	}
	mdl, err := m.Model()
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", m.Unit.Name, err)
	}

	opts := []unitscript.Option{
		unitscript.WithLogger(commonlog.GetLogger("unitscript." + m.Unit.Name)),
		unitscript.WithInstructionBudget(m.Run.MaxInstructions),
	}
	if m.Run.Seed != 0 {
		opts = append(opts, unitscript.WithSeed(uint64(m.Run.Seed)))
	}
	u, err := NewUnit(m.UnitID(), m.Unit.Name, script, mdl, opts...)
	if err != nil {
		return nil, err
	}
	u.Manifest = m
	return u, nil
}

// LoadUnits loads the manifests in dirs concurrently. The result keeps the
// order of dirs.
func LoadUnits(ctx context.Context, dirs []string) ([]*Unit, error) {
	units := make([]*Unit, len(dirs))
	g, ctx := errgroup.WithContext(ctx)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := manifest.Load(dir)
			if err != nil {
				return err
			}
			u, err := LoadUnit(m)
			if err != nil {
				return err
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return units, nil
}

// ---------------------------------------------------------------------------
// World
// ---------------------------------------------------------------------------

// World ticks its units at a fixed rate. It is not safe for concurrent use;
// share it through a Worker.
type World struct {
	clock  Clock
	delta  float64
	tick   int
	units  []*Unit
	byID   map[uuid.UUID]*Unit
	events []Event
	log    commonlog.Logger
}

// NewWorld creates a world whose ticks last delta seconds.
func NewWorld(delta float64) *World {
	return &World{
		delta: delta,
		byID:  make(map[uuid.UUID]*Unit),
		log:   commonlog.GetLogger("unitscript.host"),
	}
}

// Now returns the game time in seconds.
func (w *World) Now() float64 { return w.clock.Now() }

// Ticks returns the number of completed ticks.
func (w *World) Ticks() int { return w.tick }

// Units returns the units in the order they were added.
func (w *World) Units() []*Unit {
	return append([]*Unit(nil), w.units...)
}

// Unit looks up a unit by id.
func (w *World) Unit(id uuid.UUID) (*Unit, bool) {
	u, ok := w.byID[id]
	return u, ok
}

// Events returns the effects recorded so far.
func (w *World) Events() []Event {
	return append([]Event(nil), w.events...)
}

// Add puts u into the world and starts its manifest's start scripts.
func (w *World) Add(u *Unit) error {
	if _, dup := w.byID[u.ID]; dup {
		return fmt.Errorf("host: duplicate unit id %s", u.ID)
	}
	u.host = unitHost{Clock: &w.clock, effects: newEffects(w, u)}
	w.units = append(w.units, u)
	w.byID[u.ID] = u

	if u.Manifest != nil {
		for _, name := range u.Manifest.Run.Start {
			w.StartScript(u, name)
		}
	}
	w.log.Infof("added unit %s (%s)", u.Name, u.ID)
	return nil
}

// StartScript starts a script on u, logging a warning when it does not exist.
func (w *World) StartScript(u *Unit, name string, params ...cob.Word) {
	if u.Context.StartScript(name, params...) == nil {
		w.log.Warningf("unit %s has no script %s", u.Name, name)
	}
}

// Advance runs one tick: scheduled events, then every unit's scripts, then
// its animations.
func (w *World) Advance() {
	for _, u := range w.units {
		if u.Manifest != nil {
			for _, e := range u.Manifest.EventsAt(w.tick) {
				params := make([]cob.Word, len(e.Params))
				for i, p := range e.Params {
					params[i] = cob.Word(p)
				}
				w.StartScript(u, e.Script, params...)
			}
		}
		u.Context.Run(u.Pose, u.host)
		u.Context.ApplyAnimations(u.Pose, w.delta)
	}
	w.clock.Advance(w.delta)
	w.tick++
}

// Query runs a query script on u immediately.
func (w *World) Query(u *Unit, name string, params ...cob.Word) (unitscript.QueryResult, error) {
	return u.Context.Query(name, u.Pose, u.host, params...)
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

// Save stores a snapshot of every unit, with its pose, at the current tick.
func (w *World) Save(ctx context.Context, st *store.Store) error {
	for _, u := range w.units {
		snap := u.Context.Snapshot()
		snap.Pose = append([]model.PieceState(nil), u.Pose.Pieces...)
		if err := st.SaveSnapshot(ctx, u.ID, u.Name, w.tick, snap); err != nil {
			return fmt.Errorf("unit %s: %w", u.Name, err)
		}
	}
	return nil
}

// Restore loads the latest snapshot of every unit that has one and moves
// the clock to the latest restored tick. It returns the number of units
// restored.
func (w *World) Restore(ctx context.Context, st *store.Store) (int, error) {
	restored, tick := 0, 0
	for _, u := range w.units {
		r, err := st.Latest(ctx, u.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return restored, fmt.Errorf("unit %s: %w", u.Name, err)
		}
		snap, err := r.Snapshot()
		if err != nil {
			return restored, fmt.Errorf("unit %s: %w", u.Name, err)
		}
		if err := u.Context.Restore(snap); err != nil {
			return restored, fmt.Errorf("unit %s: %w", u.Name, err)
		}
		if len(snap.Pose) == len(u.Pose.Pieces) {
			copy(u.Pose.Pieces, snap.Pose)
		}
		restored++
		tick = max(tick, r.Tick)
		w.log.Infof("restored unit %s at tick %d", u.Name, r.Tick)
	}
	if restored > 0 {
		w.tick = tick
		w.clock.Set(float64(tick) * w.delta)
	}
	return restored, nil
}
