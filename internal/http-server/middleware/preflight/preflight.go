package preflight

import "net/http"

// Terminate answers every OPTIONS request with 204 and no body. It sits
// directly after the CORS middleware, which has already attached the
// Access-Control headers before passing the request through.
func Terminate(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}
