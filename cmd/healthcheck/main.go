// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the station's /health endpoint returns HTTP 200,
// and 1 otherwise. Compile with CGO_ENABLED=0 for a fully static binary.
//
// The target defaults to http://localhost:$STATION_PORT/health, port 8080.
package main

import (
	"net/http"
	"os"
	"time"
)

func main() {
	url := os.Getenv("STATION_HEALTHCHECK_URL")
	if url == "" {
		port := os.Getenv("STATION_PORT")
		if port == "" {
			port = "8080"
		}
		url = "http://localhost:" + port + "/health"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
