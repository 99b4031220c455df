// Package entities provides core domain entities for the execution host.
// These are plain value types shared by admission, workers, the capability
// context and the control channel. They carry no behavior beyond parsing and
// validation helpers.
package entities
