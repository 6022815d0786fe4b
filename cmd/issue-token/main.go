package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// issue-token signs a development token the way the identity provider would.
func main() {
	var (
		tokenType string
		userID    string
	)
	flag.StringVar(&tokenType, "type", string(service.TokenTypeCandidate), "Token type: candidate or proctor")
	flag.StringVar(&userID, "user", "", "Opaque user id carried by the token")
	flag.Parse()

	if userID == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := config.Load()
	auth := service.NewAuthService(cfg)

	token, err := auth.IssueToken(service.TokenType(tokenType), userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
