package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/devsync-io/devsync/backend/internal/auth"
	messagehandler "github.com/devsync-io/devsync/backend/internal/handler/message"
	projecthandler "github.com/devsync-io/devsync/backend/internal/handler/project"
	userhandler "github.com/devsync-io/devsync/backend/internal/handler/user"
	"github.com/devsync-io/devsync/backend/internal/middleware"
	"github.com/devsync-io/devsync/backend/internal/realtime"
	messageservice "github.com/devsync-io/devsync/backend/internal/service/message"
	"github.com/devsync-io/devsync/backend/internal/store"
	"github.com/devsync-io/devsync/backend/pkg/utils"
)

// Deps carries the services the router mounts.
type Deps struct {
	Auth     *auth.Service
	Users    store.IdentityStore
	Projects store.ProjectStore
	Messages *messageservice.Service
	Realtime *realtime.Handler
	Logger   zerolog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{middleware.RefreshedTokenHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	userHandler := userhandler.New(deps.Users, deps.Auth, deps.Logger)
	projectHandler := projecthandler.New(deps.Projects, deps.Users, deps.Logger)
	messageHandler := messagehandler.New(deps.Messages, deps.Projects, deps.Logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		userHandler.RegisterRoutes(api)

		api.Group(func(api chi.Router) {
			api.Use(middleware.RequireAuth(deps.Auth))
			api.Route("/projects", func(r chi.Router) {
				projectHandler.RegisterRoutes(r)
				messageHandler.RegisterRoutes(r)
			})
		})
	})

	// The websocket handshake does its own token extraction; the REST
	// auth middleware would break the upgrade.
	r.Get("/ws", deps.Realtime.ServeWS)

	return r
}
