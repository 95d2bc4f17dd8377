package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"move-market/internal/cli"
)

func main() {
	var (
		email  = flag.String("email", "", "Email of the user (subject)")
		userID = flag.String("user-id", "", "UUID of the user")
		role   = flag.String("role", "CLIENT", "User role: CLIENT | DRIVER | ADMIN")
		secret = flag.String("secret", "", "JWT HMAC secret (HS256)")
	)
	flag.Parse()

	if *email == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: key --email=<email> --user-id=<uuid> --role=DRIVER --secret='<secret>'")
		os.Exit(2)
	}

	raw, claims, err := cli.GenerateUserToken(*secret, *email, *userID, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Println("TOKEN:")
	fmt.Println(raw)
	fmt.Println("\nCLAIMS:")
	fmt.Printf("  sub:   %s\n", claims.Subject)
	fmt.Printf("  roles: %v\n", claims.Roles)
	fmt.Printf("  iat:   %s\n", claims.IssuedAt.Time.UTC().Format(time.RFC3339))
	fmt.Printf("  exp:   %s\n", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
}
