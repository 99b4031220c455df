// Package hostfuncs implements the capability context: the host services a
// guest execution may use, bound to one identity, one cancellation token and
// the streams and arguments it was admitted with.
// Nothing here depends on a WASM runtime; interpreter adapters translate
// guest calls into Context methods.
package hostfuncs
