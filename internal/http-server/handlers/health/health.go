package health

import (
	"net/http"

	"github.com/go-chi/render"

	"mailgate/lib/clock"
)

type status struct {
	Ok bool   `json:"ok"`
	TS string `json:"ts"`
}

func Check() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, status{Ok: true, TS: clock.Now()})
	}
}
