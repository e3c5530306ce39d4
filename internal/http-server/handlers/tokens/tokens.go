package tokens

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"mailgate/entity"
	"mailgate/lib/api/response"
	"mailgate/lib/sl"
)

type Core interface {
	CreateToken(ctx context.Context, maxUses int, createdBy string) (*entity.Token, error)
}

type created struct {
	Token   string `json:"token"`
	MaxUses int    `json:"max_uses"`
}

// Create issues a new invite token. The route sits behind an external
// access-control layer; nothing here authenticates the caller.
func Create(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.tokens"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		// an empty body is a valid request; defaults apply
		var req entity.CreateTokenRequest
		if err := render.Bind(r, &req); err != nil && r.ContentLength > 0 {
			logger.Warn("invalid request body", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error("invalid_request"))
			return
		}

		token, err := handler.CreateToken(r.Context(), req.MaxUses, req.CreatedBy)
		if err != nil {
			logger.Error("create token", sl.Err(err))
			render.Status(r, 500)
			render.JSON(w, r, response.Error("internal_error"))
			return
		}

		render.JSON(w, r, created{Token: token.ID, MaxUses: token.MaxUses})
	}
}
