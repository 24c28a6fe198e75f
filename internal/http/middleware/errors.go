package middleware

import "errors"

var (
	errMissingToken  = errors.New("missing or invalid token")
	errModeratorOnly = errors.New("moderator role required")
	errRateLimited   = errors.New("too many requests")
)
