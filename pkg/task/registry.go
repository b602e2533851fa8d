package task

import (
    "fmt"
    "sort"
)

// Registry holds at most one Task per Role. It is not safe for concurrent
// use: the agent guards it with its own lock together with the poll state.
type Registry struct {
    slots   map[Role]*Task
    retired map[Role]ID
}

func NewRegistry() *Registry {
    return &Registry{slots: make(map[Role]*Task), retired: make(map[Role]ID)}
}

// Register stores t in its role's slot. Registering the same ID twice
// returns the existing task and added=false. A different ID for an occupied
// slot fails with ErrRoleOccupied, and a role whose task was removed fails
// with ErrRoleRetired.
func (r *Registry) Register(t *Task) (existing *Task, added bool, err error) {
    role := t.Role()
    if !role.Valid() {
        return nil, false, fmt.Errorf("%w: %q", ErrUnknownRole, role)
    }
    if cur, ok := r.slots[role]; ok {
        if cur.ID() == t.ID() {
            return cur, false, nil
        }
        return cur, false, fmt.Errorf("%w: %s holds %s", ErrRoleOccupied, role, cur.ID())
    }
    if id, ok := r.retired[role]; ok {
        return nil, false, fmt.Errorf("%w: %s (was %s)", ErrRoleRetired, role, id)
    }
    r.slots[role] = t
    return t, true, nil
}

// Lookup returns the task registered for role, if any.
func (r *Registry) Lookup(role Role) (*Task, bool) {
    t, ok := r.slots[role]
    return t, ok
}

// Remove clears the slot of role and retires it for the rest of the node's
// lifetime. It returns the removed task, if there was one.
func (r *Registry) Remove(role Role) (*Task, bool) {
    t, ok := r.slots[role]
    if !ok {
        return nil, false
    }
    delete(r.slots, role)
    r.retired[role] = t.ID()
    return t, true
}

// Len returns the number of occupied slots.
func (r *Registry) Len() int { return len(r.slots) }

// Tasks returns the registered tasks ordered by role launch order.
func (r *Registry) Tasks() []*Task {
    out := make([]*Task, 0, len(r.slots))
    for _, t := range r.slots { out = append(out, t) }
    sort.Slice(out, func(i, j int) bool { return roleOrder(out[i].Role()) < roleOrder(out[j].Role()) })
    return out
}

func roleOrder(r Role) int {
    for i, v := range Roles {
        if v == r { return i }
    }
    return len(Roles)
}
