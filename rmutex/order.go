package rmutex

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	cycle "github.com/joeycumines/go-detect-cycle/floyds"
)

type (
	// OrderPolicy maps each lock name to the names of the locks that may
	// already be held, by the same goroutine, when acquiring it. Every lock
	// must have an entry, even if no other locks may be held.
	OrderPolicy map[string][]string

	// Tracker enforces an OrderPolicy, for the named mutexes it creates.
	// Violations cause a panic, with an *OrderError value, prior to blocking
	// on the offending lock.
	Tracker struct {
		allowed map[string]map[string]struct{}
		mu      sync.Mutex
		held    map[uint64][]string // by goroutine ID, in acquisition order
	}

	// OrderError indicates an attempt to acquire a lock while holding one
	// that the OrderPolicy does not permit.
	OrderError struct {
		Acquiring string
		Held      string
		Goroutine uint64
	}

	// OrderCycleError is returned by OrderPolicy.Validate, and wraps
	// ErrOrderCycle. Each of Locks may hold the next, and the last may hold
	// the first.
	OrderCycleError struct {
		Locks []string
	}
)

var (
	// ErrOrderCycle is wrapped by the OrderCycleError Validate returns, if the policy
	// permits two goroutines to acquire the same locks in opposite orders.
	ErrOrderCycle = errors.New(`rmutex: lock order policy contains a cycle`)
)

// Validate checks that every referenced lock has an entry, and that the
// "may hold" relation is acyclic, ignoring entries that refer to the lock
// itself (reentrant acquisition is never checked).
func (p OrderPolicy) Validate() error {
	deps := make(map[string][]string, len(p))
	for name, allowed := range p {
		for _, held := range allowed {
			if _, ok := p[held]; !ok {
				return fmt.Errorf(`rmutex: lock %q may hold unknown lock %q`, name, held)
			}
			if held != name {
				deps[name] = append(deps[name], held)
			}
		}
	}
	if locks := orderCycle(deps); locks != nil {
		return &OrderCycleError{Locks: locks}
	}
	return nil
}

// NewTracker initializes a Tracker using a copy of policy.
func NewTracker(policy OrderPolicy) *Tracker {
	t := Tracker{
		allowed: make(map[string]map[string]struct{}, len(policy)),
		held:    make(map[uint64][]string),
	}
	for name, allowed := range policy {
		set := make(map[string]struct{}, len(allowed))
		for _, v := range allowed {
			set[v] = struct{}{}
		}
		t.allowed[name] = set
	}
	return &t
}

// Mutex returns a new Mutex, subject to the tracker's policy. A panic will
// occur if name is not present in the policy.
func (t *Tracker) Mutex(name string) *Mutex {
	if _, ok := t.allowed[name]; !ok {
		panic(fmt.Errorf(`rmutex: lock %q not in policy`, name))
	}
	return &Mutex{name: name, tracker: t}
}

// Held returns the names of the tracked locks held by the goroutine with the
// given ID, in acquisition order.
func (t *Tracker) Held(goroutine uint64) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.held[goroutine])
}

func (t *Tracker) check(id uint64, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	allowed := t.allowed[name]
	for _, held := range t.held[id] {
		if _, ok := allowed[held]; !ok {
			panic(&OrderError{Acquiring: name, Held: held, Goroutine: id})
		}
	}
}

func (t *Tracker) hold(id uint64, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.held[id] = append(t.held[id], name)
}

func (t *Tracker) release(id uint64, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	held := t.held[id]
	if i := slices.Index(held, name); i >= 0 {
		held = slices.Delete(held, i, i+1)
	}
	if len(held) == 0 {
		delete(t.held, id)
	} else {
		t.held[id] = held
	}
}

func (e *OrderError) Error() string {
	return fmt.Sprintf(`rmutex: cannot hold %q when trying to acquire %q`, e.Held, e.Acquiring)
}

func (e *OrderCycleError) Error() string {
	if len(e.Locks) == 0 {
		return ErrOrderCycle.Error()
	}
	return ErrOrderCycle.Error() + `: ` + strings.Join(e.Locks, ` -> `) + ` -> ` + e.Locks[0]
}

func (e *OrderCycleError) Unwrap() error { return ErrOrderCycle }

// orderCycle walks the "may hold" relation from each lock, in name order,
// returning the first cycle found, starting from the lock it was entered at.
func orderCycle(deps map[string][]string) []string {
	var (
		path []string
		walk func(name string, d cycle.BranchingDetector) bool
	)
	walk = func(name string, d cycle.BranchingDetector) bool {
		path = append(path, name)
		for _, held := range deps[name] {
			next := d.Hare(held)
			if !d.Ok() {
				next.Clear()
				path = append(path, held)
				return true
			}
			found := walk(held, next)
			next.Clear()
			if found {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	for _, name := range slices.Sorted(maps.Keys(deps)) {
		if !walk(name, cycle.NewBranchingDetector(name, nil)) {
			continue
		}
		// the detector trails the walk, so trim to the first repeated lock
		seen := make(map[string]int, len(path))
		for j, v := range path {
			if i, ok := seen[v]; ok {
				return slices.Clone(path[i:j])
			}
			seen[v] = j
		}
	}
	return nil
}
