package wireproto

import "github.com/flux-framework/flux-core-go/pkg/ferror"

// Role bits within a Credentials.Rolemask.
const (
	RoleOwner uint32 = 1 << 0
	RoleUser  uint32 = 1 << 1
)

// Unknown is the sentinel value for an unset userid or rolemask.
const Unknown uint32 = 0xFFFFFFFF

// Credentials identifies the principal attached to a message.
type Credentials struct {
	Userid   uint32
	Rolemask uint32
}

// Authorize implements the authorization rule: OWNER always succeeds;
// otherwise the rolemask must carry USER and the challenger's userid
// must match exactly, with neither side UNKNOWN.
func (c Credentials) Authorize(challenger Credentials) error {
	if c.Rolemask&RoleOwner != 0 {
		return nil
	}
	if c.Rolemask&RoleUser == 0 {
		return ferror.New(ferror.Perm, "rolemask lacks USER or OWNER")
	}
	if c.Userid == Unknown || challenger.Userid == Unknown {
		return ferror.New(ferror.Perm, "unknown userid cannot be authorized")
	}
	if c.Userid != challenger.Userid {
		return ferror.New(ferror.Perm, "userid %d does not match %d", challenger.Userid, c.Userid)
	}
	return nil
}
