// Package auth handles interactive credential entry for the CLI login
// flow. Tokens are issued in the web client's settings screen and
// pasted here once; persistence is the config package's job.
package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Credential is a validated pasted token for one server.
type Credential struct {
	ServerURL string
	Token     string
}

// LoginPasteToken prompts for a personal access token on r and returns
// it trimmed. The serverURL is only used for the prompt text.
func LoginPasteToken(serverURL string, r io.Reader) (*Credential, error) {
	fmt.Printf("Paste your personal access token for %s\n", serverURL)
	fmt.Println("(create one under Settings → Access Tokens in the web client)")
	fmt.Print("> ")

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading token: %w", err)
		}
		return nil, errors.New("no input received")
	}

	token := strings.TrimSpace(scanner.Text())
	if err := ValidateToken(token); err != nil {
		return nil, err
	}

	return &Credential{ServerURL: serverURL, Token: token}, nil
}

// ValidateToken rejects obviously malformed tokens before they are
// persisted: empty strings and anything with embedded whitespace.
func ValidateToken(token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	if strings.ContainsAny(token, " \t\n") {
		return errors.New("token must not contain whitespace")
	}
	return nil
}
