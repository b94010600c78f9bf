package routes

import (
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	controller "mailblast/controllers"
	"mailblast/middleware"
	"mailblast/store"
	"mailblast/utils"
	"mailblast/worker"
)

// SetupRoutes wires every HTTP surface: the JSON API, the public
// tracking endpoints and the progress WebSocket.
func SetupRoutes(app *fiber.App, st *store.Store, dispatcher *worker.Dispatcher, verifier *utils.Verifier, transport utils.Transport, hub *controller.ProgressHub, logger *logrus.Logger) {
	campaignController := controller.NewCampaignController(st, dispatcher, logger)
	contactController := controller.NewContactController(st, logger)
	accountController := controller.NewAccountController(st, transport, logger)
	trackingController := controller.NewTrackingController(st, logger)
	verificationController := controller.NewVerificationController(st, verifier, logger)
	verificationController.Notifier = hub

	// Public tracking endpoints. These are hit from mail clients, so no
	// auth, no CORS restrictions, minimal logging.
	app.Get("/track/open/:campaignId/:contactId/:trackingId", trackingController.TrackOpen)
	app.Get("/track/click/:campaignId/:contactId/:trackingId", trackingController.TrackClick)
	app.Get("/unsubscribe/:campaignId/:contactId", trackingController.Unsubscribe)
	app.Post("/unsubscribe/:campaignId/:contactId", trackingController.Unsubscribe)

	api := app.Group("/api/v1", fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Campaigns
	campaigns := api.Group("/campaigns")
	campaigns.Post("/", campaignController.CreateCampaign)
	campaigns.Get("/", campaignController.GetCampaigns)
	campaigns.Get("/:id", campaignController.GetCampaign)
	campaigns.Put("/:id", campaignController.UpdateCampaign)
	campaigns.Delete("/:id", campaignController.DeleteCampaign)
	campaigns.Post("/:id/start", campaignController.StartCampaign)
	campaigns.Post("/:id/pause", campaignController.PauseCampaign)
	campaigns.Post("/:id/resume", campaignController.ResumeCampaign)
	campaigns.Post("/:id/stop", campaignController.StopCampaign)
	campaigns.Get("/:id/stats", campaignController.GetCampaignStats)
	campaigns.Get("/:id/logs", campaignController.GetCampaignLogs)
	campaigns.Get("/:id/events", campaignController.GetCampaignEvents)

	// Contacts and lists
	contacts := api.Group("/contacts")
	contacts.Post("/", contactController.CreateContact)
	contacts.Get("/", contactController.GetContacts)
	contacts.Put("/:id", contactController.UpdateContact)
	contacts.Delete("/:id", contactController.DeleteContact)

	lists := api.Group("/lists")
	lists.Post("/", contactController.CreateList)
	lists.Get("/", contactController.GetLists)
	lists.Delete("/:id", contactController.DeleteList)

	// Suppression
	blacklist := api.Group("/blacklist")
	blacklist.Get("/", contactController.GetBlacklist)
	blacklist.Post("/", contactController.AddToBlacklist)
	blacklist.Delete("/:email", contactController.RemoveFromBlacklist)

	// Sending accounts
	accounts := api.Group("/accounts")
	accounts.Post("/", accountController.CreateAccount)
	accounts.Get("/", accountController.GetAccounts)
	accounts.Put("/:id", accountController.UpdateAccount)
	accounts.Delete("/:id", accountController.DeleteAccount)
	accounts.Post("/:id/test", accountController.TestAccount)

	// Verification, throttled because probes cost the remote servers
	verify := api.Group("/verify", middleware.VerifyRateLimiter())
	verify.Get("/email", verificationController.VerifyEmail)
	verify.Post("/bulk", verificationController.BulkVerify)
	verify.Get("/jobs/:id", verificationController.GetVerificationJob)

	// Progress stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/progress", websocket.New(hub.Handle))

	logger.Info("✅ Routes initialized")
}
