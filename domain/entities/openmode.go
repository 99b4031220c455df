package entities

// MaxNameLen is the longest file name the capability context will open.
const MaxNameLen = 255

// OpenMode is the access mode derived from an open flags string.
type OpenMode int

const (
	// OpenNone means neither 'r' nor 'w' was present.
	OpenNone OpenMode = iota
	OpenRead
	OpenWrite
	OpenReadWrite
)

// ParseOpenFlags scans flags for 'r' and 'w'. Unknown characters are
// ignored and repeated letters count once.
func ParseOpenFlags(flags string) OpenMode {
	var read, write bool
	for i := 0; i < len(flags); i++ {
		switch flags[i] {
		case 'r':
			read = true
		case 'w':
			write = true
		}
	}
	switch {
	case read && write:
		return OpenReadWrite
	case read:
		return OpenRead
	case write:
		return OpenWrite
	default:
		return OpenNone
	}
}

// CanRead reports whether the mode permits reads.
func (m OpenMode) CanRead() bool {
	return m == OpenRead || m == OpenReadWrite
}

// CanWrite reports whether the mode permits writes.
func (m OpenMode) CanWrite() bool {
	return m == OpenWrite || m == OpenReadWrite
}

func (m OpenMode) String() string {
	switch m {
	case OpenRead:
		return "read"
	case OpenWrite:
		return "write"
	case OpenReadWrite:
		return "read-write"
	default:
		return "none"
	}
}
