package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/localconnect/devos/internal/api/handlers"
	"github.com/localconnect/devos/internal/api/middleware"
	"github.com/localconnect/devos/internal/config"
)

// NewRouter creates the HTTP router with all API routes. wsHandler serves
// the /ws upgrade.
func NewRouter(cfg *config.Config, h *handlers.Handlers, wsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)

	// Push channel
	r.Get("/ws", wsHandler.ServeHTTP)
	r.Get("/ws/status", h.WSStatus)

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", h.ListAgents)
		r.Post("/", h.CreateAgent)
		r.Get("/active", h.ListActiveAgents)
		r.Route("/{agentID}", func(r chi.Router) {
			r.Get("/", h.GetAgent)
			r.Patch("/", h.UpdateAgent)
			r.Patch("/status", h.UpdateAgentStatus)
			r.Post("/heartbeat", h.AgentHeartbeat)
		})
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)
		r.Post("/", h.CreateTask)
		r.Route("/{taskID}", func(r chi.Router) {
			r.Get("/", h.GetTask)
			r.Patch("/", h.UpdateTask)
			r.Post("/assign/{agentID}", h.AssignTask)
		})
	})

	r.Route("/runplans", func(r chi.Router) {
		r.Get("/", h.ListRunPlans)
		r.Post("/", h.CreateRunPlan)
		r.Get("/active", h.ListActiveRunPlans)
		r.Route("/{runPlanID}", func(r chi.Router) {
			r.Get("/", h.GetRunPlan)
			r.Patch("/", h.UpdateRunPlan)
			r.Post("/start", h.StartRunPlan)
		})
	})

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", h.ListProjects)
		r.Post("/", h.CreateProject)
		r.Route("/{projectID}", func(r chi.Router) {
			r.Get("/", h.GetProject)
			r.Patch("/", h.UpdateProject)
			r.Delete("/", h.ArchiveProject)
		})
	})

	r.Route("/costs", func(r chi.Router) {
		r.Get("/", h.ListCosts)
		r.Post("/", h.CreateCostRecord)
		r.Get("/today", h.TodayCosts)
		r.Get("/summary/{projectID}", h.CostSummary)
	})

	r.Route("/audit", func(r chi.Router) {
		r.Get("/", h.ListAuditLogs)
		r.Post("/", h.CreateAuditLog)
		r.Get("/recent", h.RecentAuditLogs)
		r.Get("/agent/{agentID}", h.AgentAuditLogs)
	})

	// Agent-to-agent coordination
	r.Route("/mcp", func(r chi.Router) {
		r.Post("/register", h.RegisterMCPAgent)
		r.Get("/agents", h.ListMCPAgents)
		r.Delete("/agents/{agentID}", h.UnregisterMCPAgent)
		r.Post("/message", h.SendMessage)
		r.Post("/broadcast", h.BroadcastMessage)

		r.Route("/design", func(r chi.Router) {
			r.Get("/", h.ListPendingDesigns)
			r.Post("/", h.SubmitDesign)
			r.Post("/respond", h.RespondDesign)
			r.Get("/{requestID}", h.GetDesign)
		})
	})

	// Deprecated direct design chat
	r.Route("/design", func(r chi.Router) {
		r.Post("/chat", h.DesignChat)
		r.Get("/health", h.DesignHealth)
	})

	return r
}
