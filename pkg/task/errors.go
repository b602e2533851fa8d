package task

import "errors"

var (
    ErrUnknownRole   = errors.New("task: unknown role")
    ErrMalformedID   = errors.New("task: malformed task id")
    ErrRoleOccupied  = errors.New("task: role already has a task")
    ErrRoleRetired   = errors.New("task: role was killed on this node")
)
