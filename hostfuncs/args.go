package hostfuncs

import (
	hosterrors "github.com/cervus-dev/cervus/domain/errors"
)

// ArgumentCount returns the number of startup arguments.
func (c *Context) ArgumentCount() int {
	return len(c.args)
}

// ReadArgument copies as much of argument index as fits in buf and returns
// the number of bytes copied.
func (c *Context) ReadArgument(index int, buf []byte) (int, error) {
	if index < 0 || index >= len(c.args) {
		return 0, hosterrors.New(hosterrors.KindInvalidArgument, "read_argument",
			"index %d out of range [0, %d)", index, len(c.args))
	}
	return copy(buf, c.args[index]), nil
}
