package main

import (
	"log"
	"os"
	"time"

	"simulation-training-api/internal/access"
	"simulation-training-api/internal/database"
	"simulation-training-api/internal/handlers"
	"simulation-training-api/internal/realtime"
	"simulation-training-api/internal/routes"
	"simulation-training-api/internal/simtime"
)

const (
	sweepInterval       = 60 * time.Second
	inactivityThreshold = 5 * time.Minute
	clockSyncInterval   = 5 * time.Second
	purgeInterval       = 10 * time.Minute
	retentionWindow     = time.Hour
)

func main() {
	// Init database
	database.InitDB()

	// Real-time core: one explicitly constructed set of registries, no
	// ambient singletons.
	registry := realtime.NewRegistry()
	router := realtime.NewRouter(registry)
	notifications := realtime.NewNotificationStore(router)
	defer notifications.Close()

	clocks := simtime.NewClockStore()
	scheduler := simtime.NewScheduler(router, notifications)

	// Terminal sessions lose their clock; that also silences their
	// session-mutating frame types.
	router.AllowMutating = clocks.Exists

	authority := access.NewAuthority(database.GetDB())

	sessions := &handlers.SessionHandler{
		Clocks:        clocks,
		Scheduler:     scheduler,
		Router:        router,
		Notifications: notifications,
		Authority:     authority,
	}
	gateway := &handlers.Gateway{
		Registry:      registry,
		Router:        router,
		Notifications: notifications,
		Authority:     authority,
	}

	go runSweeper(registry, router)
	go runClockSync(clocks, scheduler)
	go runPurge(notifications)

	// Setup the routes (public and protected routes)
	ginRoutes := routes.SetupRoutes(sessions, gateway)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8008"
	}
	log.Printf("Server starting on port %s", port)

	if err := ginRoutes.Run(":" + port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}

// runSweeper force-closes inactive connections and tells their sessions.
func runSweeper(registry *realtime.Registry, router *realtime.Router) {
	for range time.Tick(sweepInterval) {
		for _, swept := range registry.Sweep(inactivityThreshold) {
			for _, sessionID := range swept.Sessions {
				router.UpdateConnectionStatus(sessionID, swept.UserID, "disconnected")
				router.NotifyUserLeft(sessionID, swept.UserID, swept.Role)
			}
		}
	}
}

// runClockSync advances every REAL_TIME clock and fires the due events.
func runClockSync(clocks *simtime.ClockStore, scheduler *simtime.Scheduler) {
	for range time.Tick(clockSyncInterval) {
		for _, adv := range clocks.SyncAll() {
			scheduler.Advance(adv.SessionID, adv.From, adv.To)
		}
	}
}

// runPurge garbage-collects resolved notifications past the retention window.
func runPurge(notifications *realtime.NotificationStore) {
	for range time.Tick(purgeInterval) {
		if n := notifications.PurgeResolved(retentionWindow); n > 0 {
			log.Printf("purged %d resolved notifications", n)
		}
	}
}
