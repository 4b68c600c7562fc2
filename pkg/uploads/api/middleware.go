package api

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/catalog-uploads/pkg/uploads/auth"
)

// Authenticate resolves the caller with authorizer and stores the capability in
// the request context. Unauthenticated requests stop here; the admin check is
// left to the service.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capability, err := h.authorizer.Authenticate(r)
		if err != nil {
			h.logger.WarnContext(r.Context(), "authentication failed",
				"op", "api.authenticate",
				"request_id", middleware.GetReqID(r.Context()),
				"error", err,
			)
			WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithCapability(r.Context(), capability)))
	})
}
