package catalog

import (
	"strings"

	"github.com/luma/anidb/internal/ed2k"
)

// Identity is how the catalog names a file: its length and ed2k hash.
type Identity struct {
	Size int64
	ED2K string
}

// IdentityOf hashes the file at path.
func IdentityOf(path string) (Identity, error) {
	sum, size, err := ed2k.File(path)
	if err != nil {
		return Identity{}, err
	}

	return Identity{Size: size, ED2K: sum}, nil
}

func (i Identity) normalized() Identity {
	return Identity{Size: i.Size, ED2K: strings.ToLower(i.ED2K)}
}

// Link formats the identity as an ed2k link for a file called name.
func (i Identity) Link(name string) string {
	return ed2k.Link(name, i.Size, strings.ToLower(i.ED2K))
}
