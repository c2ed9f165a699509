package cmd

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

var errNotATerminal = errors.New("password not given and stdin is not a terminal")

func promptPassword(user string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNotATerminal
	}

	fmt.Fprintf(os.Stderr, "Enter password for %s: ", user)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
