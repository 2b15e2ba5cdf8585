// Command koperasi-passwd prints the bcrypt hash to put in
// AUTH_STAFF_PASSWORD_HASH. The password is read from the first argument or,
// when absent, from the first line of stdin.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"koperasi/internal/auth"
)

func main() {
	password := ""
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("read password: %v", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if len(password) < 8 {
		log.Fatalf("password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	fmt.Println(hash)
}
