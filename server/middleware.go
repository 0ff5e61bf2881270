package server

import (
	"net/http"
)

// actorHeader carries the authenticated actor id. Authentication is
// the embedding deployment's concern (reverse proxy, mTLS); the engine
// only refuses to act without an identity to audit.
const actorHeader = "X-Puckline-Actor"

// corsMiddleware applies the configured origin allow-list.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range s.cfg.Server.AllowedOrigins {
			if origin == allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+actorHeader)
				break
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireActor rejects mutating requests without an actor id. There is
// no anonymous schema or policy mutation path.
func (s *Server) requireActor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(actorHeader) == "" {
			writeError(w, http.StatusUnauthorized, "missing "+actorHeader+" header")
			return
		}
		next(w, r)
	}
}

// checkOrigin validates WebSocket origin against configured allowed
// origins. Requests without an Origin header (curl, same-host tools)
// are accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// rateLimit applies the evaluate-path limiter when configured.
func (s *Server) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.evalLimiter != nil && !s.evalLimiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "evaluation rate limit exceeded")
			return
		}
		next(w, r)
	}
}
