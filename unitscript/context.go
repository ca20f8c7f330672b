package unitscript

import (
	"errors"
	"math/rand/v2"

	"github.com/chazu/unitscript/cob"
	"github.com/chazu/unitscript/model"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Option configures a Context.
type Option func(*config)

type config struct {
	log     commonlog.Logger
	seed    uint64
	seeded  bool
	budget  int
	onFault func(*Fault)
}

// WithLogger replaces the default "unitscript" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithSeed makes the RANDOM instruction deterministic.
func WithSeed(seed uint64) Option {
	return func(c *config) {
		c.seed = seed
		c.seeded = true
	}
}

// WithInstructionBudget caps the instructions one thread may execute per
// Run. A thread that reaches the cap stays running and continues on the
// next Run. Zero means unlimited.
func WithInstructionBudget(n int) Option {
	return func(c *config) {
		c.budget = n
	}
}

// WithFaultHandler is called for every thread fault after it is logged.
func WithFaultHandler(fn func(*Fault)) Option {
	return func(c *config) {
		c.onFault = fn
	}
}

// ---------------------------------------------------------------------------
// Context
// ---------------------------------------------------------------------------

// ErrModuleNotFound is returned by Query for an unknown script name.
var ErrModuleNotFound = errors.New("module not found")

// ErrQueryBlocked is returned by Query when the script sleeps, waits or
// exhausts its instruction budget before returning.
var ErrQueryBlocked = errors.New("query script blocked")

// Context is the script VM of one unit. It is not safe for concurrent use;
// the host serialises Run, ApplyAnimations and StartScript.
type Context struct {
	script     *cob.Script
	statics    []cob.Word
	pieceMap   []int
	threads    []*Thread
	animations []Animation

	budget  int
	log     commonlog.Logger
	source  *rand.PCG
	rand    *rand.Rand
	onFault func(*Fault)
}

// New binds script to m. Every piece the script names must exist in m;
// otherwise a *PieceNotFoundError is returned and no Context is made.
func New(script *cob.Script, m Model, opts ...Option) (*Context, error) {
	cfg := config{log: commonlog.GetLogger("unitscript")}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.seeded {
		cfg.seed = rand.Uint64()
	}

	pieceMap := make([]int, len(script.Pieces))
	for i, name := range script.Pieces {
		index, ok := m.PieceIndex(name)
		if !ok {
			return nil, &PieceNotFoundError{Name: name}
		}
		pieceMap[i] = index
	}

	source := rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15)
	return &Context{
		script:   script,
		statics:  make([]cob.Word, script.StaticCount),
		pieceMap: pieceMap,
		budget:   cfg.budget,
		log:      cfg.log,
		source:   source,
		rand:     rand.New(source),
		onFault:  cfg.onFault,
	}, nil
}

// Script returns the bound script.
func (c *Context) Script() *cob.Script { return c.script }

// PieceMap returns the model piece index of each script piece.
func (c *Context) PieceMap() []int {
	return append([]int(nil), c.pieceMap...)
}

// Threads returns the live threads in start order.
func (c *Context) Threads() []*Thread {
	return append([]*Thread(nil), c.threads...)
}

// Animations returns a copy of the in-flight animations.
func (c *Context) Animations() []Animation {
	return append([]Animation(nil), c.animations...)
}

// Statics returns a copy of the static variables.
func (c *Context) Statics() []cob.Word {
	return append([]cob.Word(nil), c.statics...)
}

// ---------------------------------------------------------------------------
// Scheduling
// ---------------------------------------------------------------------------

// StartScript starts a new thread at the named module. It returns nil when
// the script has no such module.
func (c *Context) StartScript(name string, params ...cob.Word) *Thread {
	m, ok := c.script.Module(name)
	if !ok {
		c.log.Debugf("start-script %s: no such module", name)
		return nil
	}
	return c.startModule(m, params)
}

func (c *Context) startModule(m cob.Module, params []cob.Word) *Thread {
	t := newThread(m, params)
	c.threads = append(c.threads, t)
	c.log.Debugf("start-script %s%v -> thread %d", m.Name, params, t.id)
	return t
}

// Run executes every live thread in start order until it blocks, finishes,
// faults or spends its budget, then drops finished threads. Threads started
// during the pass first run on the next call. Faults never escape Run.
func (c *Context) Run(pose Pose, host Host) {
	n := len(c.threads)
	for _, t := range c.threads[:n] {
		if t.Finished() {
			continue
		}
		if err := t.run(c, pose, host); err != nil {
			c.fail(t, err)
		}
	}
	c.prune()
}

func (c *Context) fail(t *Thread, err error) {
	var f *Fault
	if !errors.As(err, &f) {
		f = &Fault{Err: err}
	}
	f.Thread = t.id
	f.Module = t.module
	if t.fp >= 0 && t.fp < len(t.stack) {
		f.Offset = t.ip()
	}
	t.status = Status{State: Finished}
	c.log.Errorf("script error: %s", f)
	if c.onFault != nil {
		c.onFault(f)
	}
}

func (c *Context) prune() {
	live := c.threads[:0]
	for _, t := range c.threads {
		if !t.Finished() {
			live = append(live, t)
		}
	}
	clear(c.threads[len(live):])
	c.threads = live
}

// SignalThreads finishes every live thread other than except whose signal
// mask overlaps mask.
func (c *Context) SignalThreads(mask cob.Word, except *Thread) {
	for _, t := range c.threads {
		if t == except || t.Finished() || !t.Signaled(mask) {
			continue
		}
		t.status = Status{State: Finished}
		c.log.Debugf("thread %d (%s) signaled with %#x", t.id, t.module, mask)
	}
}

// QueryResult is what a query script hands back.
type QueryResult struct {
	Value  cob.Word
	Params []cob.Word
}

// Query runs the named script to completion on a private thread and returns
// its return value and the final values of its parameter slots. The thread
// never joins the scheduler.
func (c *Context) Query(name string, pose Pose, host Host, params ...cob.Word) (QueryResult, error) {
	m, ok := c.script.Module(name)
	if !ok {
		return QueryResult{}, ErrModuleNotFound
	}
	t := newThread(m, params)
	if err := t.run(c, pose, host); err != nil {
		c.fail(t, err)
		return QueryResult{}, err
	}
	if !t.Finished() {
		return QueryResult{}, ErrQueryBlocked
	}
	return QueryResult{Value: t.result, Params: t.results}, nil
}

// ---------------------------------------------------------------------------
// Animations
// ---------------------------------------------------------------------------

// ApplyAnimations advances every animation by delta seconds, writes the
// result to pose and drops the ones that completed.
func (c *Context) ApplyAnimations(pose Pose, delta float64) {
	live := c.animations[:0]
	for _, a := range c.animations {
		if a.advance(pose, delta) {
			live = append(live, a)
		}
	}
	c.animations = live
}

// animate replaces any animation of the same family for a's piece and axis.
func (c *Context) animate(a Animation) {
	if isTranslation(a.Kind) {
		c.cancel(isTranslation, a.Piece, a.Axis)
	} else {
		c.cancel(isRotation, a.Piece, a.Axis)
	}
	c.animations = append(c.animations, a)
}

func (c *Context) cancel(kind func(AnimationKind) bool, piece int, axis model.Axis) {
	live := c.animations[:0]
	for _, a := range c.animations {
		if !(kind(a.Kind) && a.Piece == piece && a.Axis == axis) {
			live = append(live, a)
		}
	}
	c.animations = live
}

func (c *Context) animating(kind func(AnimationKind) bool, piece int, axis model.Axis) bool {
	for _, a := range c.animations {
		if kind(a.Kind) && a.Piece == piece && a.Axis == axis {
			return true
		}
	}
	return false
}

func (c *Context) findSpin(piece int, axis model.Axis) int {
	for i, a := range c.animations {
		if isSpin(a.Kind) && a.Piece == piece && a.Axis == axis {
			return i
		}
	}
	return -1
}

// startSpin begins a spin, or retargets the existing one for piece and axis
// from its current speed.
func (c *Context) startSpin(piece int, axis model.Axis, speed, acceleration float64) {
	if i := c.findSpin(piece, axis); i >= 0 {
		a := &c.animations[i]
		a.TargetSpeed = speed
		if acceleration > 0 {
			a.Kind = SpinUp
			a.Acceleration = acceleration
		} else {
			a.Kind = Spin
			a.Speed = speed
			a.Acceleration = 0
		}
		return
	}
	a := Animation{Kind: Spin, Piece: piece, Axis: axis, Speed: speed, TargetSpeed: speed}
	if acceleration > 0 {
		a.Kind = SpinUp
		a.Speed = 0
		a.Acceleration = acceleration
	}
	c.animations = append(c.animations, a)
}

// stopSpin ramps the spin for piece and axis down to rest, or removes it at
// once when deceleration is not positive.
func (c *Context) stopSpin(piece int, axis model.Axis, deceleration float64) {
	i := c.findSpin(piece, axis)
	if i < 0 {
		return
	}
	if deceleration <= 0 {
		c.animations = append(c.animations[:i], c.animations[i+1:]...)
		return
	}
	a := &c.animations[i]
	a.Kind = SpinDown
	a.Acceleration = deceleration
}

// ---------------------------------------------------------------------------
// Addressed storage
// ---------------------------------------------------------------------------

func (c *Context) static(index cob.Word) (cob.Word, error) {
	if index < 0 || int(index) >= len(c.statics) {
		return 0, fault(ErrBadStatic, index)
	}
	return c.statics[index], nil
}

func (c *Context) setStatic(index cob.Word, v cob.Word) error {
	if index < 0 || int(index) >= len(c.statics) {
		return fault(ErrBadStatic, index)
	}
	c.statics[index] = v
	return nil
}

func (c *Context) module(index cob.Word) (cob.Module, error) {
	if index < 0 || int(index) >= len(c.script.Modules) {
		return cob.Module{}, fault(ErrBadModule, index)
	}
	return c.script.Modules[index], nil
}

func (c *Context) pieceIndex(index cob.Word) (int, error) {
	if index < 0 || int(index) >= len(c.pieceMap) {
		return 0, fault(ErrBadPiece, index)
	}
	return c.pieceMap[index], nil
}

// random returns a value in [lo, hi], or lo when the range is empty.
func (c *Context) random(lo, hi cob.Word) cob.Word {
	if lo >= hi {
		return lo
	}
	n := int64(hi) - int64(lo) + 1
	return cob.Word(int64(lo) + c.rand.Int64N(n))
}
