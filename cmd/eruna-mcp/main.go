package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	erunamcp "github.com/claude/eruna/internal/mcp"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "eruna server URL (e.g. https://eruna.tail1234.ts.net)")
	apiKey := flag.String("api-key", os.Getenv("ERUNA_AUTH_API_KEY"), "API key of the eruna server (default $ERUNA_AUTH_API_KEY)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("eruna-mcp", Version)
		return
	}

	if *serverURL == "" || *apiKey == "" {
		fmt.Fprintf(os.Stderr, "Usage: eruna-mcp -server <URL> [-api-key KEY]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// stdout carries the protocol; logs go to stderr
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("eruna-mcp starting", "version", Version, "server", *serverURL)

	s := erunamcp.New(erunamcp.NewHTTPClient(*serverURL, *apiKey), Version, log)
	if err := server.ServeStdio(s); err != nil {
		log.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
