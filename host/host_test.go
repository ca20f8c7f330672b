package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazu/unitscript/cob"
	"github.com/chazu/unitscript/model"
	"github.com/chazu/unitscript/store"
	"github.com/chazu/unitscript/unitscript"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// armScript raises the arm while Create runs and fires a shot on Fire.
func armScript() *cob.Script {
	b := cob.NewBuilder()
	b.Module("Create")
	b.Push(cob.Word(2 * unitscript.LinearScale))
	b.Push(cob.Word(4 * unitscript.LinearScale))
	b.Emit(cob.OpMovePieceWithSpeed, 1, cob.Word(model.AxisY))
	b.Emit(cob.OpWaitForMove, 1, cob.Word(model.AxisY))
	b.Push(1)
	b.Emit(cob.OpSetStatic, 0)
	b.Push(0)
	b.Emit(cob.OpReturn)

	b.Module("Fire")
	b.Push(cob.Word(unitscript.ExplodeFall))
	b.Emit(cob.OpExplode, 1)
	b.Emit(cob.OpPlaySound, 0)
	b.Push(0)
	b.Emit(cob.OpReturn)

	b.Module("QueryHeight")
	b.Push(cob.Word(unitscript.PieceY))
	b.Emit(cob.OpPushLocal, 0)
	b.Push(0)
	b.Push(0)
	b.Push(0)
	b.Emit(cob.OpGetFunctionResult)
	b.Emit(cob.OpReturn)

	return b.Script([]string{"base", "arm"}, []string{"shot"}, 1)
}

func armModel(t *testing.T) *model.Model {
	t.Helper()
	m, err := model.New([]model.Piece{
		{Name: "base", Parent: -1},
		{Name: "arm", Parent: 0, Offset: model.Vector3{0, 1, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

const manifestText = `
[unit]
id = "%ID%"
name = "arm"
script = "arm.cob"

[[unit.pieces]]
name = "base"

[[unit.pieces]]
name = "arm"
parent = "base"
offset = [0.0, 1.0, 0.0]

[run]
tick-rate = 2.0
seed = 9

[[run.events]]
tick = 1
script = "Fire"
`

func writeUnitDir(t *testing.T, id uuid.UUID) string {
	t.Helper()
	dir := t.TempDir()
	text := strings.ReplaceAll(manifestText, "%ID%", id.String())
	if err := os.WriteFile(filepath.Join(dir, "unit.toml"), []byte(text), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "arm.cob"), cob.Encode(armScript()), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

// ---------------------------------------------------------------------------
// World
// ---------------------------------------------------------------------------

func TestWorldAdvance(t *testing.T) {
	u, err := NewUnit(uuid.New(), "arm", armScript(), armModel(t))
	if err != nil {
		t.Fatal(err)
	}
	w := NewWorld(0.5)
	if err := w.Add(u); err != nil {
		t.Fatal(err)
	}
	w.StartScript(u, "Create")

	// Four ticks to arrive, one more for the waiting thread to resume.
	for i := 0; i < 5; i++ {
		w.Advance()
	}
	if got := u.Pose.Move(1, model.AxisY); got != 4 {
		t.Errorf("arm y = %v, want 4", got)
	}
	if got := u.Context.Statics()[0]; got != 1 {
		t.Errorf("static 0 = %d, want 1 once the move finished", got)
	}
	if w.Ticks() != 5 || w.Now() != 2.5 {
		t.Errorf("ticks/now = %d/%v, want 5/2.5", w.Ticks(), w.Now())
	}
	if n := len(u.Context.Threads()); n != 0 {
		t.Errorf("len(Threads) = %d, want 0", n)
	}
}

func TestWorldEffects(t *testing.T) {
	u, err := NewUnit(uuid.New(), "arm", armScript(), armModel(t))
	if err != nil {
		t.Fatal(err)
	}
	w := NewWorld(1.0 / 30)
	if err := w.Add(u); err != nil {
		t.Fatal(err)
	}
	w.StartScript(u, "Fire")
	w.Advance()

	events := w.Events()
	if len(events) != 2 {
		t.Fatalf("events = %v, want 2", events)
	}
	if e := events[0]; e.Kind != "explode" || e.Piece != "arm" || e.Args[0] != cob.Word(unitscript.ExplodeFall) {
		t.Errorf("event 0 = %s", e)
	}
	if e := events[1]; e.Kind != "play-sound" || e.Name != "shot" {
		t.Errorf("event 1 = %s", e)
	}
}

func TestWorldDuplicateUnit(t *testing.T) {
	id := uuid.New()
	w := NewWorld(1)
	for i, want := range []bool{true, false} {
		u, err := NewUnit(id, "arm", armScript(), armModel(t))
		if err != nil {
			t.Fatal(err)
		}
		if err := w.Add(u); (err == nil) != want {
			t.Errorf("Add #%d error = %v", i, err)
		}
	}
}

func TestWorldQuery(t *testing.T) {
	u, err := NewUnit(uuid.New(), "arm", armScript(), armModel(t))
	if err != nil {
		t.Fatal(err)
	}
	w := NewWorld(1)
	if err := w.Add(u); err != nil {
		t.Fatal(err)
	}
	u.Pose.SetMove(1, model.AxisY, 2)

	res, err := w.Query(u, "QueryHeight", 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if want := cob.Word(3 * unitscript.LinearScale); res.Value != want {
		t.Errorf("arm height = %d, want %d", res.Value, want)
	}
}

func TestFunctionResult(t *testing.T) {
	u, err := NewUnit(uuid.New(), "arm", armScript(), armModel(t))
	if err != nil {
		t.Fatal(err)
	}
	w := NewWorld(1)
	if err := w.Add(u); err != nil {
		t.Fatal(err)
	}
	e := u.host.effects

	tests := []struct {
		what unitscript.UnitValue
		p    [4]cob.Word
		want cob.Word
	}{
		{unitscript.Hypot, [4]cob.Word{3, 4}, 5},
		{unitscript.Atan, [4]cob.Word{1, 0}, cob.Word(90 * unitscript.AngularScale)},
		{unitscript.XZHypot, [4]cob.Word{PackXZ(-3, 4)}, cob.Word(5 * unitscript.LinearScale)},
		{unitscript.Health, [4]cob.Word{}, 100},
		{unitscript.PieceXZ, [4]cob.Word{1}, PackXZ(0, 0)},
		{unitscript.PieceY, [4]cob.Word{7}, 0},
	}
	for _, tc := range tests {
		if got := e.FunctionResult(tc.what, tc.p); got != tc.want {
			t.Errorf("FunctionResult(%d, %v) = %d, want %d", tc.what, tc.p, got, tc.want)
		}
	}

	e.SetUnitValue(unitscript.Activation, 1)
	if got := e.UnitValue(unitscript.Activation); got != 1 {
		t.Errorf("Activation = %d, want 1", got)
	}
}

func TestPackXZ(t *testing.T) {
	for _, c := range [][2]cob.Word{{0, 0}, {5, -7}, {-300, 1200}, {-1, -1}} {
		x, z := UnpackXZ(PackXZ(c[0], c[1]))
		if x != c[0] || z != c[1] {
			t.Errorf("UnpackXZ(PackXZ(%d, %d)) = %d, %d", c[0], c[1], x, z)
		}
	}
}

// ---------------------------------------------------------------------------
// Loading and persistence
// ---------------------------------------------------------------------------

func TestLoadUnits(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	var dirs []string
	for _, id := range ids {
		dirs = append(dirs, writeUnitDir(t, id))
	}

	units, err := LoadUnits(context.Background(), dirs)
	if err != nil {
		t.Fatalf("LoadUnits: %v", err)
	}
	for i, u := range units {
		if u.ID != ids[i] {
			t.Errorf("unit %d id = %s, want %s", i, u.ID, ids[i])
		}
		if len(u.Script.Modules) != 3 {
			t.Errorf("unit %d modules = %d, want 3", i, len(u.Script.Modules))
		}
	}

	_, err = LoadUnits(context.Background(), append(dirs, t.TempDir()))
	if err == nil {
		t.Error("LoadUnits accepted a directory without a manifest")
	}
}

func TestManifestEvents(t *testing.T) {
	units, err := LoadUnits(context.Background(), []string{writeUnitDir(t, uuid.New())})
	if err != nil {
		t.Fatal(err)
	}
	w := NewWorld(units[0].Manifest.TickDelta())
	if err := w.Add(units[0]); err != nil {
		t.Fatal(err)
	}

	w.Advance()
	if n := len(w.Events()); n != 0 {
		t.Errorf("events after tick 0 = %d, want 0", n)
	}
	w.Advance()
	if n := len(w.Events()); n != 2 {
		t.Errorf("events after tick 1 = %d, want 2", n)
	}
}

func TestSaveRestore(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "world.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	dir := writeUnitDir(t, uuid.New())
	load := func() (*World, *Unit) {
		units, err := LoadUnits(ctx, []string{dir})
		if err != nil {
			t.Fatal(err)
		}
		w := NewWorld(units[0].Manifest.TickDelta())
		if err := w.Add(units[0]); err != nil {
			t.Fatal(err)
		}
		return w, units[0]
	}

	w, u := load()
	w.Advance() // Create starts moving the arm
	if err := w.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	w2, u2 := load()
	n, err := w2.Restore(ctx, st)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 1 {
		t.Fatalf("restored %d units, want 1", n)
	}
	if w2.Ticks() != w.Ticks() || w2.Now() != w.Now() {
		t.Errorf("restored clock %d/%v, want %d/%v", w2.Ticks(), w2.Now(), w.Ticks(), w.Now())
	}
	if got, want := u2.Pose.Move(1, model.AxisY), u.Pose.Move(1, model.AxisY); got != want {
		t.Errorf("restored arm y = %v, want %v", got, want)
	}
	if len(u2.Context.Threads()) != len(u.Context.Threads()) {
		t.Errorf("restored %d threads, want %d", len(u2.Context.Threads()), len(u.Context.Threads()))
	}

	for i := 0; i < 4; i++ {
		w.Advance()
		w2.Advance()
	}
	if got, want := u2.Pose.Move(1, model.AxisY), u.Pose.Move(1, model.AxisY); got != want {
		t.Errorf("arm y after resuming = %v, want %v", got, want)
	}
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

func TestWorkerDo(t *testing.T) {
	w := NewWorld(1)
	wk := NewWorker(w)
	defer wk.Stop()
	ctx := context.Background()

	if err := wk.Advance(ctx, 3); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	var ticks int
	if err := wk.Do(ctx, func(w *World) error {
		ticks = w.Ticks()
		return nil
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if ticks != 3 {
		t.Errorf("ticks = %d, want 3", ticks)
	}

	boom := errors.New("boom")
	if err := wk.Do(ctx, func(*World) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Do error = %v, want boom", err)
	}
	if err := wk.Do(ctx, func(*World) error { panic("bad") }); err == nil || !strings.Contains(err.Error(), "bad") {
		t.Errorf("Do after panic error = %v", err)
	}
}

func TestWorkerStopped(t *testing.T) {
	wk := NewWorker(NewWorld(1))
	wk.Stop()
	wk.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := wk.Do(ctx, func(*World) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Do on a stopped worker error = %v, want ErrStopped", err)
	}
}
