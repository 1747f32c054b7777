package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"library_turnover/backend/internal/gateway/handlers"
	"library_turnover/backend/internal/gateway/util"
	"library_turnover/backend/internal/shared"
	"library_turnover/backend/internal/wizard"
)

// SetupRoutes configures the Chi router, middleware, and route handlers.
func SetupRoutes(clients *ServiceClients, cfg *shared.GatewayConfig, log *zap.SugaredLogger) *chi.Mux {
	r := chi.NewRouter()

	// 1. Global Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	// 2. Initialize Handlers
	turnoverHandler := &handlers.TurnoverHandler{
		Client:      clients.TurnoverClient,
		CallTimeout: cfg.GRPC.RequestTimeout,
	}
	wizardHandler := &handlers.WizardHandler{
		Sessions: wizard.NewSessions(handlers.RPCEngine{Client: clients.TurnoverClient}, log),
		Turnover: turnoverHandler,
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "status": "ok"})
	})

	// 3. Define Routes (grouped by prefix)
	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware([]byte(cfg.Security.JWTSecret)))

		r.Route("/years", func(r chi.Router) {
			r.Get("/", turnoverHandler.ListYears)
			r.Post("/", turnoverHandler.CreateYear)
			r.Get("/active", turnoverHandler.GetActiveYear)
		})

		r.Route("/turnover", func(r chi.Router) {
			r.Get("/prepare", turnoverHandler.PrepareTurnover)
			r.Post("/validate", turnoverHandler.ValidateTurnover)
			r.Post("/execute", turnoverHandler.ExecuteTurnover)
			r.Get("/history", turnoverHandler.GetTurnoverHistory)
			r.Post("/history/{id}/resume", turnoverHandler.ResumeTurnover)
			r.Post("/history/{id}/cancel", turnoverHandler.CancelTurnover)
		})

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", turnoverHandler.ListSnapshots)
			r.Post("/{year}", turnoverHandler.CreateSnapshot)
			r.Get("/{year}", turnoverHandler.GetSnapshot)
			r.Get("/{year}/filter", turnoverHandler.FilterSnapshot)
		})

		r.Route("/wizard", func(r chi.Router) {
			r.Post("/", wizardHandler.Open)
			r.Get("/", wizardHandler.State)
			r.Delete("/", wizardHandler.Close)
			r.Post("/next", wizardHandler.Next)
			r.Post("/back", wizardHandler.Back)
			r.Post("/steps/{step}/complete", wizardHandler.CompleteStep)
			r.Post("/classes", wizardHandler.AddClass)
			r.Delete("/classes/{id}", wizardHandler.RemoveClass)
			r.Put("/mappings", wizardHandler.SetMappings)
			r.Post("/actions", wizardHandler.AssignActions)
			r.Post("/execute", wizardHandler.Execute)
			r.Get("/report", wizardHandler.Report)
		})
	})

	return r
}

// AuthMiddleware verifies the bearer token and puts its account into the request context.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, err := util.ExtractToken(r)
			if err != nil {
				util.WriteJSONError(w, http.StatusUnauthorized, "Authorization token required")
				return
			}

			claims, err := util.ParseToken(secret, tokenStr)
			if err != nil {
				util.WriteJSONError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(util.WithAccount(r.Context(), claims.Subject)))
		})
	}
}

// RequestLogger logs one structured line per request
func RequestLogger(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			fields := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
				"request_id", middleware.GetReqID(r.Context()),
			}
			switch {
			case ww.Status() >= 500:
				log.Errorw("http", fields...)
			case ww.Status() >= 400:
				log.Warnw("http", fields...)
			default:
				log.Infow("http", fields...)
			}
		})
	}
}
