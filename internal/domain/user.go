package domain

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the profile document keyed by the auth gateway's uid. The record is
// created implicitly at first sign-in with RoleUser.
type User struct {
	UID               string   `json:"uid"`
	Email             string   `json:"email"`
	Role              Role     `json:"role"`
	DisplayName       *string  `json:"displayName,omitempty"`
	LastName          *string  `json:"lastName,omitempty"`
	PhoneNumber       *string  `json:"phoneNumber,omitempty"`
	ProfilePictureURL *string  `json:"profilePictureUrl,omitempty"`
	Favorites         []string `json:"favorites"` // unique hotel ids
}

// ProfilePatch is the shallow merge payload for profile updates.
type ProfilePatch struct {
	DisplayName       *string
	LastName          *string
	PhoneNumber       *string
	ProfilePictureURL *string
}

// HasFavorite reports whether id is in the favorites set.
func (u User) HasFavorite(id string) bool {
	for _, f := range u.Favorites {
		if f == id {
			return true
		}
	}
	return false
}
