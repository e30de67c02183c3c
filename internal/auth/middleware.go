package auth

import (
	"context"
	"fmt"
	"net/http"

	"fast-queue/internal/logger"
	"fast-queue/internal/models"
	"fast-queue/internal/utils"
)

type contextKey string

const authContextKey contextKey = "auth_context"

// Middleware rejects requests without a valid bearer token and stores the
// caller's AuthContext on the request context.
func Middleware(verifier Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Discard()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", err.Error()))
				return
			}

			establishmentID, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("INVALID_TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "invalid token"))
				return
			}

			ctx := WithAuthContext(r.Context(), models.AuthContext{EstablishmentID: establishmentID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithAuthContext(ctx context.Context, ac models.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

// FromContext returns the AuthContext set by Middleware.
func FromContext(ctx context.Context) (models.AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey).(models.AuthContext)
	return ac, ok && ac.EstablishmentID != ""
}
