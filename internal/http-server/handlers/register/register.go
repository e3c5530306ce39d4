package register

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"mailgate/entity"
	"mailgate/lib/api/response"
	"mailgate/lib/sl"
)

type Core interface {
	RegisterAccount(ctx context.Context, tokenID, localPart, ip string) (*entity.User, error)
}

type result struct {
	Ok    bool   `json:"ok"`
	Email string `json:"email"`
}

// New handles POST /api/register. Every failure carries a stable reason
// code; three distinct token states share the 403 status.
func New(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.register"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.RegisterRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Warn("invalid request body", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error("missing_fields"))
			return
		}
		logger = logger.With(
			sl.Secret("token", req.Token),
			slog.String("local_part", req.LocalPart),
		)

		user, err := handler.RegisterAccount(r.Context(), req.Token, req.LocalPart, clientIP(r))
		if err != nil {
			status, reason := classify(err)
			if status >= 500 {
				logger.Error("registration failed", sl.Err(err))
			} else {
				logger.Warn("registration rejected", slog.String("reason", reason))
			}
			render.Status(r, status)
			render.JSON(w, r, response.Error(reason))
			return
		}
		logger.Debug("registration accepted", slog.String("email", user.Email))

		render.JSON(w, r, result{Ok: true, Email: user.Email})
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, entity.ErrInvalidLocalPart):
		return 400, "invalid_local_part"
	case errors.Is(err, entity.ErrTokenUnknown):
		return 403, "invalid_token"
	case errors.Is(err, entity.ErrTokenDisabled):
		return 403, "token_disabled"
	case errors.Is(err, entity.ErrTokenExhausted):
		return 403, "token_exhausted"
	case errors.Is(err, entity.ErrUserExists):
		return 409, "user_exists"
	default:
		return 500, "internal_error"
	}
}

// clientIP prefers the first X-Forwarded-For hop when the service sits
// behind a proxy, falling back to the connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	return r.RemoteAddr
}
