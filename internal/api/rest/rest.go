package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/griothouse/storymarket/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig, uploadLimit gin.HandlerFunc) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Story endpoints (public read access)
		v1.GET("/stories", handler.ListStories)
		v1.GET("/stories/:chain/:token_number", handler.GetStory)

		// Story drafts and off-chain metadata (requires authentication)
		v1.POST("/stories", middleware.Auth(authCfg), handler.CreateStoryDraft)
		v1.PATCH("/stories/:chain/:token_number", middleware.Auth(authCfg), handler.UpdateStoryMeta)

		// Content uploads (requires authentication, rate limited per IP)
		v1.POST("/stories/upload", middleware.Auth(authCfg), uploadLimit, handler.Upload)
		v1.POST("/stories/upload/metadata", middleware.Auth(authCfg), uploadLimit, handler.UploadMetadata)

		// Marketplace endpoints (public read access)
		v1.GET("/marketplace/listings", handler.ListListings)
		v1.GET("/marketplace/listings/:chain/:listing_number", handler.GetListing)
		v1.GET("/marketplace/sales", handler.ListSales)
		v1.GET("/marketplace/offers", handler.ListOffers)

		// Offer intents (requires authentication)
		v1.POST("/marketplace/offers", middleware.Auth(authCfg), handler.CreateOffer)

		// Notification endpoints (requires authentication)
		v1.GET("/notifications", middleware.Auth(authCfg), handler.ListNotifications)
		v1.PATCH("/notifications/:id/read", middleware.Auth(authCfg), handler.MarkNotificationRead)

		// Lazy mint endpoints
		v1.POST("/lazy-mints", middleware.Auth(authCfg), handler.CreateLazyMint)
		v1.GET("/lazy-mints", handler.ListLazyMints)
		v1.GET("/lazy-mints/:id", handler.GetLazyMint)

		// Voucher consumption is reported by the minting service (API key only)
		v1.PATCH("/lazy-mints/:id/minted", middleware.APIKeyAuth(authCfg), handler.MarkLazyMintMinted)
	}
}
