package middleware

import (
	"net/http"

	"github.com/tendant/tenantctx/internal/config"
	"github.com/tendant/tenantctx/internal/httputil"
)

// CORS sets the allow-origin and allow-headers headers on every response
// and answers preflight requests with 200 "ok".
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.AllowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", cfg.AllowOrigin)
			}
			if cfg.AllowHeaders != "" {
				w.Header().Set("Access-Control-Allow-Headers", cfg.AllowHeaders)
			}

			if r.Method == http.MethodOptions {
				httputil.Text(w, http.StatusOK, "ok")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
