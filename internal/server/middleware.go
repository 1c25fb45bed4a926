package server

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/fusion/internal/uow"
)

const corsMaxAge = "600"

// cors allows the listed origins, with credentials. A "*" entry allows any
// origin.
func cors(origins []string) func(http.Handler) http.Handler {
	anyOrigin := slices.Contains(origins, "*")
	allowed := func(origin string) bool {
		return anyOrigin || slices.Contains(origins, origin)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !allowed(origin) {
				if preflight {
					respondError(w, http.StatusBadRequest, "Disallowed CORS origin")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Methods", "DELETE, GET, HEAD, OPTIONS, PATCH, POST, PUT")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			h.Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusOK)
		})
	}
}

// recovery turns a handler panic into a 500 JSON response. The panic value is
// only shown to clients in debug mode.
func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.log.Error().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Interface("panic", rec).
				Msg("unhandled error")

			msg := "An error occurred"
			if s.settings.Debug {
				msg = fmt.Sprint(rec)
			}
			respondJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Internal server error",
				"message": msg,
			})
		}()
		next.ServeHTTP(w, r)
	})
}

// requestLogging tags each request with an ID and logs it with its duration.
func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		start := time.Now()
		log := s.log.With().Str("request_id", id).Logger()

		log.Info().Str("method", r.Method).Str("path", r.URL.Path).Msg("request started")

		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, start: start}
		next.ServeHTTP(rec, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status()).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

// statusRecorder captures the response status and stamps X-Process-Time just
// before the header is written.
type statusRecorder struct {
	http.ResponseWriter
	start time.Time
	code  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.code != 0 {
		return
	}
	r.code = code
	elapsed := time.Since(r.start).Seconds()
	r.Header().Set("X-Process-Time", fmt.Sprintf("%.6f", elapsed))
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.code == 0 {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) status() int {
	if r.code == 0 {
		return http.StatusOK
	}
	return r.code
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// unitOfWork acquires a unit for the request and closes it when the handler
// returns, whatever happened inside. Handlers commit explicitly.
func (s *Server) unitOfWork(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unit, err := s.provider.Acquire(r.Context())
		if err != nil {
			s.respondStorageError(w, r, err)
			return
		}
		defer func() {
			if err := unit.Close(); err != nil {
				s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("close unit of work")
			}
		}()

		next.ServeHTTP(w, r.WithContext(uow.NewContext(r.Context(), unit)))
	})
}
