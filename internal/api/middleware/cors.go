package middleware

import (
	"net/http"
	"strings"
)

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

// CORS answers preflight requests itself and decorates every other response with the
// allow headers when the request origin is permitted.
func CORS(config CORSConfig) Middleware {
	methods := strings.Join(config.AllowedMethods, ", ")
	headers := strings.Join(config.AllowedHeaders, ", ")

	return func(f http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			allowed := config.resolveOrigin(r.Header.Get("Origin"))
			if allowed != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", allowed)
				if config.AllowCredentials && allowed != "*" {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				h.Add("Vary", "Origin")
			}

			if r.Method != http.MethodOptions {
				f(w, r)
				return
			}
			if allowed == "" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	}
}

// resolveOrigin returns the value for Access-Control-Allow-Origin, or "" when the
// origin is not permitted. A wildcard echoes the origin back when credentials are on.
func (c CORSConfig) resolveOrigin(origin string) string {
	for _, o := range c.AllowedOrigins {
		switch {
		case o == "*" && c.AllowCredentials && origin != "":
			return origin
		case o == "*":
			return "*"
		case o == origin:
			return o
		}
	}
	return ""
}
