package entities

// FileSystemRequest represents a runtime request to access the filesystem.
type FileSystemRequest struct {
	Path      string
	Operation string // "read", "write"
}

// FileSystemRequestsFor expands an open mode into the requests a policy must allow.
func FileSystemRequestsFor(path string, mode OpenMode) []FileSystemRequest {
	var reqs []FileSystemRequest
	if mode.CanRead() {
		reqs = append(reqs, FileSystemRequest{Path: path, Operation: "read"})
	}
	if mode.CanWrite() {
		reqs = append(reqs, FileSystemRequest{Path: path, Operation: "write"})
	}
	return reqs
}
