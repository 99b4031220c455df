// Package wazero runs guest programs on the wazero WebAssembly interpreter.
//
// Each invocation gets a fresh runtime. The guest may import the host module
// (default name "cervus"), whose functions forward to a ports.Capabilities:
//
//	log_write(level, ptr, len) i32         identity() i32
//	io_get_stdin() i32                     io_get_stdout() i32
//	io_get_stderr() i32
//	resource_open(name, name_len, flags, flags_len) i32
//	resource_read(handle, ptr, len, offset i64) i32
//	resource_write(handle, ptr, len, offset i64) i32
//	resource_close(handle) i32
//	env_yield() i32   env_sleep(ms) i32   env_reschedule() i32
//	sem_create() i32  sem_destroy(id) i32 sem_release(id) i32 sem_acquire(id) i32
//	startup_arg_len() i32                  startup_arg_at(index, ptr, len) i32
//
// Non-negative results are values; negative results are status codes from
// domain/errors. A cancelled capability call does not return to the guest:
// it unwinds the whole invocation, which then fails with ErrCancelled.
//
// The guest entry point is the export "__app_main" with type () -> i32.
package wazero
