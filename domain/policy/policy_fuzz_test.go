package policy_test

import (
	"testing"

	"github.com/cervus-dev/cervus/domain/entities"
	"github.com/cervus-dev/cervus/domain/policy"
)

func FuzzMatchPath(f *testing.F) {
	p := policy.NewPolicy(
		policy.WithDenialHandler(&policy.NopDenialHandler{}),
		policy.WithSymlinkResolution(false),
	)
	grants := &entities.GrantSet{
		FS: &entities.FileSystemCapability{
			Rules: []entities.FileSystemRule{
				{Read: []string{"/data/**", "/etc/hosts"}},
			},
		},
	}
	f.Add("/data/file.txt")
	f.Add("/etc/hosts")
	f.Add("/etc/passwd")

	f.Fuzz(func(t *testing.T, path string) {
		req := entities.FileSystemRequest{Path: path, Operation: "read"}
		p.CheckFileSystem(req, grants)
	})
}
