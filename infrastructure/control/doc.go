// Package control is the Unix-domain socket transport for the two host
// commands.
//
// A client connects, sends one wireformat.RequestWire frame and reads one
// wireformat.ResponseWire frame. The submitting identity is the peer's
// effective uid as reported by SO_PEERCRED; nothing in the frame can claim
// an identity. For RUN the client may pass its standard stream descriptors
// with the request frame as SCM_RIGHTS. Closing the connection before the
// response arrives terminates the execution.
package control
