// Package main is a minimal HTTP health check binary for distroless
// containers. It exits 0 when inkwell's /health endpoint returns 200 and 1
// otherwise. INKWELL_PORT selects the port, as it does for the server.
package main

import (
	"net/http"
	"os"
	"time"
)

func main() {
	port := os.Getenv("INKWELL_PORT")
	if port == "" {
		port = "8080"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost:" + port + "/health")
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
