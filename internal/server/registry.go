// Package server tracks which display name, if any, is bound to each live
// connection.
package server

// registry maps connection ids to the display names clients announce. It is
// owned by the hub's event loop and is not safe for concurrent use.
type registry struct {
	names map[string]string
}

func newRegistry() *registry {
	return &registry{names: make(map[string]string)}
}

// bind records or overwrites the display name for a connection. Calling it
// again with a new name renames the connection.
func (r *registry) bind(connID, name string) {
	r.names[connID] = name
}

// nameOf returns the bound display name, or false when the connection never
// announced one.
func (r *registry) nameOf(connID string) (string, bool) {
	name, ok := r.names[connID]
	return name, ok
}

// unbind drops the binding for a connection. No-op when absent.
func (r *registry) unbind(connID string) {
	delete(r.names, connID)
}
