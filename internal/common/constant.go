package common

// HTTP header names shared by the server and the client.
const (
	AuthorizationHeaderName = "Authorization"
	BearerPrefix            = "Bearer "
	RequestIDHeaderName     = "X-Request-ID"
	SessionIDHeaderName     = "X-Session-ID"
)
