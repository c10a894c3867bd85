package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"elaqe.org/internal/auth"
)

func main() {
	var (
		user   = flag.String("user", "", "user ID to sign the token for")
		ttl    = flag.Duration("ttl", 12*time.Hour, "token lifetime")
		secret = flag.String("secret", os.Getenv("ELAQE_AUTH_SECRET"), "signing secret")
	)
	flag.Parse()

	if *user == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -user <id> [-ttl 12h]\n", os.Args[0])
		os.Exit(2)
	}
	tokens, err := auth.NewTokens(*secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue-token: %v\n", err)
		os.Exit(1)
	}
	token, exp, err := tokens.Issue(*user, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue-token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.UTC().Format(time.RFC3339))
}
