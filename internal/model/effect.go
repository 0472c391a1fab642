package model

// Effect is a sealed sum type describing a side effect returned by a
// transition's on-fire hook, a watcher reaction, or a scheduled thunk.
// Effects are short-lived: the kernel consumes them breadth-first and they
// are the only way attributes and disease states change mid-run.
//
// Variants: Emit, SetAttr, SetDisease, ModifyHazard, Schedule.
type Effect interface {
	effect() // sealed
}

// Emit appends an event to the log and dispatches it to all watchers.
// The kernel assigns ID, PID, and Time; callers fill Kind, RelatesTo, Meta.
type Emit struct {
	Event Event
}

func (Emit) effect() {}

// SetAttr writes an attribute through the catalog clamp.
type SetAttr struct {
	Key   string
	Value Value
}

func (SetAttr) effect() {}

// SetDisease moves a machine to an explicit state. Setting the current
// state is a no-op; otherwise the machine's version bumps and it is
// rescheduled.
type SetDisease struct {
	Machine string
	State   string
}

func (SetDisease) effect() {}

// HazardModifier rewrites a hazard rate. Modifiers for a machine are
// applied in installation order during scheduling.
type HazardModifier func(lambda float64, snap Snapshot, now float64) float64

// ModifyHazard installs a hazard modifier on a machine. A finite Until
// schedules a removal thunk that only fires if the installation token still
// matches, so a reinstallation under the same id survives the original's
// expiry.
type ModifyHazard struct {
	Machine    string
	ModifierID string
	Fn         HazardModifier
	Until      *float64
}

func (ModifyHazard) effect() {}

// Thunk is a closure evaluated when its scheduled time is reached.
// It receives no arguments; state access goes through the kernel context
// captured at creation.
type Thunk func() []Effect

// Schedule enqueues a thunk at an absolute time. Times in the past clamp
// to the current time.
type Schedule struct {
	At    float64
	Thunk Thunk
}

func (Schedule) effect() {}
