package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/climalink/climalink-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.With(s.requirePermission(auth.PermDeviceManage)).Post("/", s.handleCreateDevice)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.With(s.requirePermission(auth.PermDeviceManage)).Patch("/", s.handleUpdateDevice)
					r.With(s.requirePermission(auth.PermDeviceManage)).Delete("/", s.handleDeleteDevice)
					r.Get("/status", s.handleGetDeviceStatus)
					r.With(s.requirePermission(auth.PermDeviceControl)).Post("/status/refresh", s.handleRefreshDeviceStatus)
					r.Get("/commands", s.handleListDeviceCommands)
					r.With(s.requirePermission(auth.PermDeviceControl)).Post("/commands", s.handleSendCommand)
					r.Get("/schedules", s.handleListDeviceSchedules)
					r.Get("/alerts", s.handleListDeviceAlerts)
				})
			})

			// Model catalogue
			r.Route("/models", func(r chi.Router) {
				r.Get("/", s.handleListModels)
				r.With(s.requirePermission(auth.PermDeviceManage)).Post("/", s.handleCreateModel)
				r.Get("/{id}", s.handleGetModel)
				r.With(s.requirePermission(auth.PermDeviceManage)).Patch("/{id}", s.handleUpdateModel)
				r.With(s.requirePermission(auth.PermDeviceManage)).Delete("/{id}", s.handleDeleteModel)
			})

			r.Route("/brands", func(r chi.Router) {
				r.Get("/", s.handleListBrands)
				r.With(s.requirePermission(auth.PermDeviceManage)).Post("/", s.handleCreateBrand)
			})

			// Locations
			r.Route("/locations", func(r chi.Router) {
				r.Get("/", s.handleListLocations)
				r.With(s.requirePermission(auth.PermDeviceManage)).Post("/", s.handleCreateLocation)
				r.Get("/{id}", s.handleGetLocation)
				r.With(s.requirePermission(auth.PermDeviceManage)).Delete("/{id}", s.handleDeleteLocation)
			})

			// Schedules
			r.Route("/schedules", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermScheduleManage)).Post("/", s.handleCreateSchedule)
				r.Get("/{id}", s.handleGetSchedule)
				r.With(s.requirePermission(auth.PermScheduleManage)).Patch("/{id}", s.handleUpdateSchedule)
				r.With(s.requirePermission(auth.PermScheduleManage)).Delete("/{id}", s.handleDeleteSchedule)
			})

			// Alerts
			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", s.handleListAlerts)
				r.With(s.requirePermission(auth.PermAlertAck)).Post("/{id}/ack", s.handleAcknowledgeAlert)
			})

			// User management (admin only)
			r.Route("/users", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermUserManage))
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Get("/{id}", s.handleGetUser)
				r.Patch("/{id}", s.handleUpdateUser)
				r.Delete("/{id}", s.handleDeleteUser)
			})

			// Password change for the authenticated user
			r.Post("/auth/password", s.handleChangePassword)

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
