// Package voice owns the hardware channel pool: it maps note identities to
// one or two chip channels, steals the oldest allocation under contention,
// and degrades dual-voice requests to a single channel when only one is
// free. It never touches the device directly; key-offs for forced releases
// go through a caller-supplied callback so the pool stays device-agnostic.
package voice

type Role int

const (
	RolePrimary Role = iota
	RoleSecondary
)

// ChannelSet is the one or two channels backing a note. Secondary is -1 for
// single-channel allocations.
type ChannelSet struct {
	Primary   int
	Secondary int
}

func (s ChannelSet) Has(ch int) bool { return s.Primary == ch || s.Secondary == ch }

func (s ChannelSet) Each(fn func(ch int, role Role)) {
	fn(s.Primary, RolePrimary)
	if s.Secondary >= 0 {
		fn(s.Secondary, RoleSecondary)
	}
}

// EventKind tags allocator observations. Neither is an error: stealing is
// the designed resolution to pool exhaustion and degradation is a per-note
// fallback, but callers may want to log both.
type EventKind int

const (
	EventStolen EventKind = iota
	EventDegraded
)

type Event struct {
	Kind     EventKind
	NoteID   int
	Channel  int // the stolen channel (EventStolen)
	FromNote int // previous owner (EventStolen)
}

type slotState int

const (
	slotFree slotState = iota
	slotAllocated
)

type slot struct {
	state       slotState
	owner       int
	role        Role
	allocatedAt int
}

// Result reports one Allocate outcome.
type Result struct {
	Channels ChannelSet
	Degraded bool // dual-voice request served by a single channel
}

// Allocator multiplexes a fixed pool of chip channels. Stealing is keyed to
// a logical allocation counter rather than wall-clock time, so offline and
// online renders of the same timeline make identical decisions.
type Allocator struct {
	slots    []slot
	clock    int
	keyOff   func(ch int)
	observer func(Event)
}

type Option func(*Allocator)

// WithKeyOff installs the force-release hook invoked for every channel a
// steal or Release frees. Required for any allocator driving a real device.
func WithKeyOff(fn func(ch int)) Option {
	return func(a *Allocator) { a.keyOff = fn }
}

// WithObserver installs the steal/degrade event hook.
func WithObserver(fn func(Event)) Option {
	return func(a *Allocator) { a.observer = fn }
}

func New(poolSize int, opts ...Option) *Allocator {
	a := &Allocator{slots: make([]slot, poolSize)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Allocator) PoolSize() int { return len(a.slots) }

// FreeCount returns how many channels are unallocated.
func (a *Allocator) FreeCount() int {
	n := 0
	for i := range a.slots {
		if a.slots[i].state == slotFree {
			n++
		}
	}
	return n
}

// Allocate claims one channel for noteID, or two when dual is set. It always
// succeeds: with the pool exhausted it steals the oldest allocation(s),
// force-releasing them through the key-off hook first. A dual request with
// exactly one free channel degrades to that single channel instead of
// stealing.
func (a *Allocator) Allocate(noteID int, dual bool) Result {
	want := 1
	if dual {
		want = 2
	}
	if want > len(a.slots) {
		// A one-channel pool can never honor a pair; serve voice1 only.
		want = len(a.slots)
	}
	free := a.freeChannels()

	var res Result
	switch {
	case len(free) >= want:
		res.Channels = a.claim(noteID, free[:want])
	case dual && len(free) == 1:
		res.Channels = a.claim(noteID, free[:1])
	default:
		chans := make([]int, 0, want)
		chans = append(chans, free...)
		for len(chans) < want {
			chans = append(chans, a.stealOldest(noteID))
		}
		res.Channels = a.claim(noteID, chans)
	}
	if dual && res.Channels.Secondary < 0 {
		res.Degraded = true
		a.emit(Event{Kind: EventDegraded, NoteID: noteID, Channel: res.Channels.Primary})
	}
	return res
}

// Release frees every channel noteID still owns, emitting a key-off for
// each, and returns the freed set. Unknown note IDs free nothing.
func (a *Allocator) Release(noteID int) []int {
	var freed []int
	for i := range a.slots {
		if a.slots[i].state == slotAllocated && a.slots[i].owner == noteID {
			if a.keyOff != nil {
				a.keyOff(i)
			}
			a.slots[i] = slot{}
			freed = append(freed, i)
		}
	}
	return freed
}

// Lookup returns the channel set noteID currently owns. When one half of a
// dual pair has been stolen, the surviving channel is reported under its
// original role.
func (a *Allocator) Lookup(noteID int) (ChannelSet, bool) {
	set := ChannelSet{Primary: -1, Secondary: -1}
	found := false
	for i := range a.slots {
		if a.slots[i].state == slotAllocated && a.slots[i].owner == noteID {
			found = true
			if a.slots[i].role == RoleSecondary {
				set.Secondary = i
			} else {
				set.Primary = i
			}
		}
	}
	return set, found
}

func (a *Allocator) freeChannels() []int {
	var free []int
	for i := range a.slots {
		if a.slots[i].state == slotFree {
			free = append(free, i)
		}
	}
	return free
}

// stealOldest force-releases the channel with the smallest allocation stamp
// and returns it, still marked free, for the caller to claim.
func (a *Allocator) stealOldest(forNote int) int {
	oldest := -1
	for i := range a.slots {
		if a.slots[i].state != slotAllocated {
			continue
		}
		if oldest < 0 || a.slots[i].allocatedAt < a.slots[oldest].allocatedAt {
			oldest = i
		}
	}
	prev := a.slots[oldest].owner
	if a.keyOff != nil {
		a.keyOff(oldest)
	}
	a.slots[oldest] = slot{}
	a.emit(Event{Kind: EventStolen, NoteID: forNote, Channel: oldest, FromNote: prev})
	return oldest
}

func (a *Allocator) claim(noteID int, chans []int) ChannelSet {
	set := ChannelSet{Primary: chans[0], Secondary: -1}
	a.slots[chans[0]] = slot{state: slotAllocated, owner: noteID, role: RolePrimary, allocatedAt: a.clock}
	if len(chans) > 1 {
		set.Secondary = chans[1]
		a.slots[chans[1]] = slot{state: slotAllocated, owner: noteID, role: RoleSecondary, allocatedAt: a.clock}
	}
	a.clock++
	return set
}

func (a *Allocator) emit(ev Event) {
	if a.observer != nil {
		a.observer(ev)
	}
}
