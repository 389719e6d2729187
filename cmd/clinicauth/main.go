// Command clinicauth runs the authentication HTTP service and the key
// maintenance tools that go with it.
//
//	clinicauth serve      [-config config.yaml]
//	clinicauth encrypt    [-config config.yaml] < plaintext lines
//	clinicauth decrypt    [-config config.yaml] < ciphertext lines
//	clinicauth rewrap     [-config config.yaml] [-db] < ciphertext lines
//	clinicauth add-user   [-config config.yaml] -email e -role r -password p
//	clinicauth totp-code  -secret BASE32
package main

import (
	"fmt"
	"os"
)

type command struct {
	name  string
	usage string
	run   func(args []string) error
}

var commands = []command{
	{"serve", "run the HTTP service", runServe},
	{"encrypt", "encrypt stdin lines with the primary key", runEncrypt},
	{"decrypt", "decrypt stdin lines", runDecrypt},
	{"rewrap", "re-encrypt stdin lines, or users.mfa_secret with -db, under the primary key", runRewrap},
	{"add-user", "insert a principal into the users table", runAddUser},
	{"totp-code", "print the current TOTP code for a secret", runTOTPCode},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	name := os.Args[1]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n", name)
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: clinicauth <command> [flags]")
	fmt.Fprintln(os.Stderr)
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.usage)
	}
}
