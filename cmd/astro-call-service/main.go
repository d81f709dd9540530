// Package main is the entry point of astro-call-service (HTTP + SSE/WebSocket + gRPC health).
package main

import (
	"log"

	"github.com/niraliveastro/astro-call-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
