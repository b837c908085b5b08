package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/livesync"
	"github.com/joho/godotenv"
)

// watch tails the order board from a terminal: live events when the stream
// is up, silent polling when it is not.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	base := os.Getenv("SYNC_BASE_URL")
	if base == "" {
		base = "http://localhost:8084"
	}

	rec := livesync.New(livesync.Config{
		StreamURL: base + "/api/events/orders",
		OrdersURL: base + "/api/orders",
		OnChange: func(s livesync.Snapshot) {
			fmt.Printf("[%s] %d orders", s.State, len(s.Orders))
			if len(s.NewIDs) > 0 {
				fmt.Printf(" (%d new)", len(s.NewIDs))
			}
			fmt.Println()
			for _, o := range s.Orders {
				marker := " "
				if s.NewIDs[o.ID] {
					marker = "*"
				}
				fmt.Printf("  %s %-10s %-24s %-14s %8.2f [%s]\n",
					marker, o.ExternalReference, o.CustomerName, o.Status, o.TotalAmount, o.PaymentState)
			}
		},
	})

	rec.Start()
	defer rec.Stop()

	log.Printf("Watching order board at %s", base)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Stopping watch...")
}
