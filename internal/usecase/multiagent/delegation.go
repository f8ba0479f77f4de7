package multiagent

import (
	"fmt"
	"sort"
	"sync"

	"conductor/internal/domain"
)

// delegationKeyTaskLen is how many runes of the task take part in the key.
const delegationKeyTaskLen = 50

// DelegationKey identifies an in-flight delegation: target agent plus the
// first 50 runes of the task.
func DelegationKey(agentID, task string) string {
	r := []rune(task)
	if len(r) > delegationKeyTaskLen {
		r = r[:delegationKeyTaskLen]
	}
	return agentID + ":" + string(r)
}

// ActiveDelegations is the process-wide set of delegations currently running.
// A key is present exactly while its delegation is in flight.
type ActiveDelegations struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewActiveDelegations creates an empty set.
func NewActiveDelegations() *ActiveDelegations {
	return &ActiveDelegations{keys: make(map[string]struct{})}
}

// Acquire marks key as in flight. It fails with ErrCircularDelegation when the
// key is already held. The returned release is idempotent.
func (d *ActiveDelegations) Acquire(key string) (release func(), err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, held := d.keys[key]; held {
		return nil, fmt.Errorf("%w: %s", domain.ErrCircularDelegation, key)
	}
	d.keys[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.keys, key)
			d.mu.Unlock()
		})
	}, nil
}

// Contains reports whether key is currently held.
func (d *ActiveDelegations) Contains(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.keys[key]
	return ok
}

// Len returns the number of in-flight delegations.
func (d *ActiveDelegations) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}

// Keys returns a sorted snapshot of the held keys.
func (d *ActiveDelegations) Keys() []string {
	d.mu.Lock()
	out := make([]string, 0, len(d.keys))
	for k := range d.keys {
		out = append(out, k)
	}
	d.mu.Unlock()
	sort.Strings(out)
	return out
}
