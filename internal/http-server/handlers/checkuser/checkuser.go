package checkuser

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
	CheckUser(ctx context.Context, localPart string) (*entity.UserSnapshot, error)
}

type result struct {
	Exists bool    `json:"exists"`
	Status *string `json:"status"`
}

// Check reports whether an address is taken. The answer may be served from
// the cache and be stale by up to its TTL; nothing security-relevant hangs
// on it.
func Check(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.checkuser"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.CheckUserRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Warn("invalid request body", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error("missing_local_part"))
			return
		}

		snap, err := handler.CheckUser(r.Context(), req.LocalPart)
		if err != nil {
			logger.Error("check user", sl.Err(err))
			render.Status(r, 500)
			render.JSON(w, r, response.Error("internal_error"))
			return
		}

		render.JSON(w, r, result{Exists: snap.Exists, Status: snap.Status})
	}
}
