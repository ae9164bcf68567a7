package main

import (
	"github.com/gin-gonic/gin"
	"github.com/lingopair/backend/internal/middleware"
	"github.com/lingopair/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiter for the verifier polling endpoints
	pollLimiter := middleware.NewRateLimiter(10, 20)

	// Health check
	r.GET("/health", svc.healthHandler.CheckHealth)

	// API routes
	api := r.Group("/api")
	{
		// Public routes
		api.GET("/languages", svc.healthHandler.Languages)

		auth := api.Group("/auth")
		{
			auth.POST("/login", svc.authHandler.Login)
			auth.GET("/config", svc.authHandler.GetAuthConfig)
		}

		// Authenticated routes (any role)
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// Learner endpoints
			protected.POST("/attempts/:id/admit", svc.learnerHandler.Admit)
			protected.POST("/attempts/:id/flag", svc.learnerHandler.Flag)
			protected.GET("/attempts/:id/review", svc.learnerHandler.Review)
			protected.GET("/feedback/unseen", svc.learnerHandler.UnseenFeedback)
			protected.POST("/feedback/seen", svc.learnerHandler.MarkFeedbackSeen)
			protected.POST("/audio-assets", svc.learnerHandler.RegisterAudio)
		}

		// Verifier routes
		verifier := api.Group("")
		verifier.Use(middleware.AuthRequired(), middleware.VerifierRequired())
		{
			queue := verifier.Group("/review-queue")
			{
				queue.POST("/claim-next", svc.queueHandler.ClaimNext)
				queue.POST("/:id/release", svc.queueHandler.Release)
				queue.POST("/:id/submit", svc.queueHandler.Submit)
				queue.GET("/current-claim", svc.queueHandler.CurrentClaim)
				queue.GET("/signal", pollLimiter.Middleware(), svc.queueHandler.Signal)
				queue.GET("/pending", svc.queueHandler.Pending)
				queue.GET("/escalated", svc.queueHandler.Escalated)
			}

			verifier.PUT("/verifier/profile", svc.verifierHandler.UpsertProfile)
			verifier.PUT("/verifier/languages/:code", svc.verifierHandler.SetLanguage)
			verifier.GET("/verifier/state", svc.verifierHandler.State)
			verifier.GET("/calibration", svc.calibrationHandler.Report)
		}

		// Admin routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/review-queue/:id/history", svc.auditHandler.History)
		}
	}
}
