package middleware

// Echo context keys shared between the auth and tracing middleware and the
// handlers that read them.
const (
	ContextKeyUserID    = "user_id"
	ContextKeyUserEmail = "user_email"
	ContextKeyUserRole  = "user_role"
	ContextKeyRequestID = "request_id"
)
