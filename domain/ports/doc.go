// Package ports defines the interfaces the host core depends on.
// The interpreter, the memory mapper, borrowed streams and the log sink are
// external collaborators; infrastructure adapters implement these interfaces.
package ports
