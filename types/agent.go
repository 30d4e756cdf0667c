package types

import "context"

// Executor is the minimal agent execution interface: an identity and the
// ability to run with arbitrary input/output. No type in this module
// implements it. It lives in types, the lowest-level package,
// so higher packages can accept an Executor without importing each other.
type Executor interface {
	ID() string
	Execute(ctx context.Context, input any) (any, error)
}

// Named is an optional interface for executors that have a display name.
type Named interface {
	Name() string
}
