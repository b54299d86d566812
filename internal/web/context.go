package web

import (
	"fmt"
	"net/http"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/web/middleware"
)

// userID returns the requesting user set by middleware.Identity.
func userID(r *http.Request) string {
	if u := core.UserFromContext(r.Context()); u != "" {
		return u
	}
	return middleware.AnonymousUser
}

// invalidRequest wraps a request problem so it maps to 400.
func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrInvalidOptions, fmt.Sprintf(format, args...))
}
