package auth

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Permission is a single capability tag from the closed registry below.
// The string value is the canonical name used in payloads and storage.
type Permission string

const (
	// Docs
	PermDocsRead Permission = "DocsRead"

	// Invites
	PermInviteWrite  Permission = "InviteWrite"
	PermInviteRead   Permission = "InviteRead"
	PermInviteDelete Permission = "InviteDelete"

	// Users
	PermUserRead   Permission = "UserRead"
	PermUserDelete Permission = "UserDelete"

	// Permission delegation anchors
	PermPermissionAdd    Permission = "PermissionAdd"
	PermPermissionDelete Permission = "PermissionDelete"

	// Tokens
	PermTokenDelete Permission = "TokenDelete"

	// Catalog
	PermGenreWrite  Permission = "GenreWrite"
	PermGenreRead   Permission = "GenreRead"
	PermGenreDelete Permission = "GenreDelete"

	PermArtistWrite  Permission = "ArtistWrite"
	PermArtistRead   Permission = "ArtistRead"
	PermArtistDelete Permission = "ArtistDelete"

	PermAlbumWrite  Permission = "AlbumWrite"
	PermAlbumRead   Permission = "AlbumRead"
	PermAlbumDelete Permission = "AlbumDelete"

	PermTrackWrite  Permission = "TrackWrite"
	PermTrackRead   Permission = "TrackRead"
	PermTrackDelete Permission = "TrackDelete"

	// Audio blobs
	PermAudioWrite  Permission = "AudioWrite"
	PermAudioRead   Permission = "AudioRead"
	PermAudioDelete Permission = "AudioDelete"
)

// registry fixes the canonical enumeration order.
var registry = []Permission{
	PermDocsRead,
	PermInviteWrite, PermInviteRead, PermInviteDelete,
	PermUserRead, PermUserDelete,
	PermPermissionAdd, PermPermissionDelete,
	PermTokenDelete,
	PermGenreWrite, PermGenreRead, PermGenreDelete,
	PermArtistWrite, PermArtistRead, PermArtistDelete,
	PermAlbumWrite, PermAlbumRead, PermAlbumDelete,
	PermTrackWrite, PermTrackRead, PermTrackDelete,
	PermAudioWrite, PermAudioRead, PermAudioDelete,
}

var (
	registryIndex = make(map[string]Permission, len(registry))
	registryOrder = make(map[Permission]int, len(registry))
)

func init() {
	for i, p := range registry {
		registryIndex[strings.ToLower(string(p))] = p
		registryOrder[p] = i
	}
}

// All returns every permission in registry order.
func All() []Permission {
	out := make([]Permission, len(registry))
	copy(out, registry)
	return out
}

// Parse resolves a permission name, case-insensitively. Unknown names fail
// with ErrUnknownPermission.
func Parse(name string) (Permission, error) {
	p, ok := registryIndex[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPermission, name)
	}
	return p, nil
}

// Set is a permission set. The zero value is usable for membership checks;
// use NewSet or Add for construction.
type Set map[Permission]struct{}

// NewSet builds a set from the given permissions.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// FullSet returns a set holding the entire registry. Used by the bootstrap
// guard when creating the first user.
func FullSet() Set {
	return NewSet(registry...)
}

// ParseStrings builds a set from canonical names, failing hard on any
// unknown name. This is the strict codec for request payloads.
func ParseStrings(names []string) (Set, error) {
	s := make(Set, len(names))
	for _, name := range names {
		p, err := Parse(name)
		if err != nil {
			return nil, err
		}
		s[p] = struct{}{}
	}
	return s, nil
}

// Has reports membership of a single permission.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Add inserts permissions in place.
func (s Set) Add(perms ...Permission) {
	for _, p := range perms {
		s[p] = struct{}{}
	}
}

// Union returns a new set holding every permission of s and other.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Without returns a new set holding s minus other.
func (s Set) Without(other Set) Set {
	out := make(Set, len(s))
	for p := range s {
		if !other.Has(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Sorted returns the members in registry order.
func (s Set) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return registryOrder[out[i]] < registryOrder[out[j]]
	})
	return out
}

// Strings returns the canonical names in registry order.
func (s Set) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = string(p)
	}
	return out
}

// MarshalJSON encodes the set as an ordered list of canonical names.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON decodes a list of names strictly: an unknown name is a hard
// error, since payloads must never smuggle tags outside the registry.
func (s *Set) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := ParseStrings(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// EncodeSet serializes a set for storage: comma-joined canonical names in
// registry order.
func EncodeSet(s Set) string {
	return strings.Join(s.Strings(), ",")
}

// DecodeSet is the lenient storage-side decoder. Unknown or empty tokens in
// a stored column are dropped rather than rejected, so a row written by a
// newer revision still resolves.
func DecodeSet(raw string) Set {
	s := Set{}
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		p, err := Parse(tok)
		if err != nil {
			continue
		}
		s[p] = struct{}{}
	}
	return s
}
