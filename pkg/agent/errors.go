package agent

import "errors"

var (
    ErrNoMetadataTask     = errors.New("agent: no metadata task registered")
    ErrAlreadyInitialized = errors.New("agent: metadata node already initialized")
    ErrNotStarted         = errors.New("agent: not started")
)
