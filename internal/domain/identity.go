package domain

import (
	"errors"
	"fmt"
	"strings"
)

// LocalUserID namespaces records created without an authenticated session.
const LocalUserID = "local-user"

// ErrReservedUserID is returned when a signed-in uid equals LocalUserID.
var ErrReservedUserID = errors.New("user id is reserved for signed-out records")

// Identity is either Anonymous or Authenticated(uid). It is passed explicitly
// to every store call instead of comparing user ids against LocalUserID.
type Identity struct {
	uid string
}

// Anonymous is the identity of a device without a signed-in user.
func Anonymous() Identity {
	return Identity{}
}

// Authenticated returns the identity of a signed-in user. A blank uid, or
// LocalUserID itself, yields Anonymous: a signed-in user never shares the
// signed-out storage key.
func Authenticated(uid string) Identity {
	uid = strings.TrimSpace(uid)
	if uid == LocalUserID {
		return Identity{}
	}
	return Identity{uid: uid}
}

// ParseUserID is Authenticated for caller-supplied ids. It rejects
// LocalUserID instead of quietly mapping it to Anonymous.
func ParseUserID(uid string) (Identity, error) {
	if strings.TrimSpace(uid) == LocalUserID {
		return Anonymous(), fmt.Errorf("%w: %q", ErrReservedUserID, uid)
	}
	return Authenticated(uid), nil
}

// IsAuthenticated reports whether a remote identity is present.
func (i Identity) IsAuthenticated() bool {
	return i.uid != ""
}

// UserID is the authenticated uid, or "" for Anonymous.
func (i Identity) UserID() string {
	return i.uid
}

// StorageKey is the key the local cache uses for this identity.
func (i Identity) StorageKey() string {
	if i.uid == "" {
		return LocalUserID
	}
	return i.uid
}

func (i Identity) String() string {
	if i.uid == "" {
		return "anonymous"
	}
	return "user:" + i.uid
}
