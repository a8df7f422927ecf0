/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loyalty ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire the ledger core (repository, registry, directory, redeem policy)
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: loyalty.db)
           Use ":memory:" for an in-memory database
  -policy  Redemption policy: "full-reset" or "carry-over"
           (default: full-reset)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/loyalty.db"

  # Run with carry-over redemptions
  ./server -policy=carry-over

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tally/loyalty-engine/api"
	"github.com/tally/loyalty-engine/ledger"
	"github.com/tally/loyalty-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "loyalty.db", "SQLite database path")
	policyName := flag.String("policy", "full-reset", "Redemption policy: full-reset or carry-over")
	flag.Parse()

	policy := ledger.RedeemFullReset
	switch *policyName {
	case "full-reset":
	case "carry-over":
		policy = ledger.RedeemCarryOver
	default:
		log.Fatalf("Unknown redemption policy %q (want full-reset or carry-over)", *policyName)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire the core: the SQLite store backs all three collaborators.
	core := ledger.NewCore(store, store, store, ledger.WithRedeemPolicy(policy))

	// Create router
	handler := api.NewHandler(core, store)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Loyalty ledger listening on http://localhost:%d (policy: %s)", *port, policy)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
