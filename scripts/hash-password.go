package main

import (
	"fmt"
	"os"

	"github.com/openclaw/export-worker-go/internal/util"
)

// Prints API_TOKEN_HASH for a service token. Without an argument a random
// token is generated and printed first.
func main() {
	token := ""
	if len(os.Args) >= 2 {
		token = os.Args[1]
	} else {
		generated, err := util.GenerateKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		token = generated
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/hash-password.go [token]\n")
		fmt.Printf("token: %s\n", token)
	}

	hash, err := util.BcryptToken(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}
