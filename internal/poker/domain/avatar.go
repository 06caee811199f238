package domain

import "fmt"

// AvatarID identifies one of the fixed pool of visual identities. The zero
// value means no avatar is held.
type AvatarID int

// AvatarNone is the absence of an avatar.
const AvatarNone AvatarID = 0

// AvatarPoolSize is the number of distinct avatars a session can hand out.
const AvatarPoolSize = 7

// AvatarPool returns the full avatar identity pool in order.
func AvatarPool() []AvatarID {
	pool := make([]AvatarID, 0, AvatarPoolSize)
	for i := 1; i <= AvatarPoolSize; i++ {
		pool = append(pool, AvatarID(i))
	}
	return pool
}

// IsValid reports whether the id names an avatar in the pool.
func (a AvatarID) IsValid() bool {
	return a >= 1 && a <= AvatarPoolSize
}

// AssetPath returns the rendering asset for the avatar. Empty for AvatarNone
// or out-of-pool ids.
func (a AvatarID) AssetPath() string {
	if !a.IsValid() {
		return ""
	}
	return fmt.Sprintf("/avatars/avatar-%d.svg", int(a))
}
