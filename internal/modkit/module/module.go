// Package module holds the port registry modules use to find each other during bootstrap
package module

import "dayfill/internal/modkit"

// Module is re-exported so callers can register without importing modkit
type Module = modkit.Module

// RegisterModule stores m's ports under its name
func RegisterModule(m Module) { Register(m.Name(), m.Ports()) }

// MustPortsAs fetches ports for name or panics naming the missing module
func MustPortsAs[T any](name string) T {
	if v, ok := PortsAs[T](name); ok {
		return v
	}
	panic("module: no ports of the requested type registered for " + name)
}
