package usercontext

// Shared Locals/session keys used across controllers and middlewares
const (
	// LocalsKey holds the UserContext in fiber Locals.
	LocalsKey = "USER_CONTEXT"

	AuthKey     = "authenticated"
	KeyUserID   = "user_id"
	KeyEmail    = "email"
	KeyUsername = "username"
)
