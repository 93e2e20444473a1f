package ftracer

import (
	"github.com/jward/ftracer/internal/scope"
	"github.com/jward/ftracer/internal/store"
	"github.com/jward/ftracer/internal/tracer"
)

// Public aliases for the internal types exposed by the Engine API.

type Store = store.Store
type File = store.File
type CacheStats = store.CacheStats
type Index = scope.Index
type Scope = scope.Scope
type Lines = scope.Lines
type Tracer = tracer.Tracer
type TracerOption = tracer.Option
type ExecEvent = tracer.ExecEvent
