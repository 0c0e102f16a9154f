// Package handlers contains HTTP handler interfaces, implementations, and middleware.
//
// This package provides:
//   - Health check interfaces and implementations
//   - Platform webhook processing (submission and schedule events)
//   - Reusable middleware components
//
// # Health Checks
//
// The HealthChecker interface allows registering multiple named health checks
// that are executed in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("database", handlers.NewDatabaseCheck(db))
//	checker.AddCheck("cache", handlers.NewCacheCheck(cache))
//	checker.AddCheck("authoring", handlers.NewAuthoringCheck(authoringClient))
//
//	status := checker.Check(ctx)
//	if !status.Healthy {
//	    log.Printf("Health check failed: %s", status.Message)
//	}
//
// # Webhooks
//
// The school platform pushes two kinds of events: a completed submission and
// a regenerated schedule. PlatformWebhookProcessor decodes the envelope and
// routes each event to the matching command handler:
//
//	processor := handlers.NewPlatformWebhookProcessor(linkHandler, materializeHandler, log)
//	err := processor.HandleEvent(ctx, eventType, payload)
//
// Webhook requests are authenticated with an HMAC-SHA256 signature over the
// raw body, carried in the X-Signature-256 header.
//
// # Middleware
//
//	auth := handlers.NewAPIKeyAuth("X-API-Key", []string{"secret-key"})
//	protected := handlers.ChainHandler(
//	    myHandler,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.NoCacheMiddleware,
//	    auth.Middleware,
//	)
package handlers
