package modkit

// Module is the common surface for modules built from Deps
type Module interface {
	// Name returns the module name used in logs and the port registry
	Name() string

	// Ports returns the module's port set for cross wiring
	Ports() any
}

// Builder constructs a Module from shared deps
type Builder func(Deps) Module
