package identity

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, shell user and wrong
	// password alike, so login failures never reveal which one it was.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountDisabled is returned when the password verified but the
	// account is administratively disabled.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrInvalidToken covers missing, expired and consumed setup/reset
	// tokens, and missing or invalid bearer sessions.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrNotBootstrapEligible is returned when a claim presents a usable
	// token that is not the bootstrap token, or the shell admin has
	// already been claimed.
	ErrNotBootstrapEligible = errors.New("token is not eligible for bootstrap claim")

	// ErrLastAdmin rejects role changes that would leave the system
	// without a credentialed admin.
	ErrLastAdmin = errors.New("cannot remove the last credentialed admin")

	// ErrUnknownRole is returned when a role-name list references a role
	// that does not exist.
	ErrUnknownRole = errors.New("unknown role name")

	// ErrUnknownPermission is returned when a permission-code list
	// references a code that does not exist and is not an auto-provisioned
	// per-node code.
	ErrUnknownPermission = errors.New("unknown permission code")

	// ErrInvalidEmail rejects empty or shapeless email addresses.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrEmailTaken is returned when creating or renaming a user collides
	// with an existing normalized email.
	ErrEmailTaken = errors.New("email already in use")

	// ErrNoRoles rejects replacing a user's roles with the empty set.
	ErrNoRoles = errors.New("user must keep at least one role")
)
