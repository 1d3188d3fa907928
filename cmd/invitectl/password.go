package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xshift/service-meeting-invite/auth"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var hashCost int

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
	Long: `Prompts for the admin password twice and prints its bcrypt hash.
When stdin is not a terminal the password is read from its first line.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, err := promptPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		hash, err := auth.HashPassword(string(pw), hashCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(hash))
		return nil
	},
}

func init() {
	hashPasswordCmd.Flags().IntVar(&hashCost, "cost", 0, "bcrypt cost (default 10)")
}

// promptPassword reads the password without echo and asks for confirmation on a terminal.
func promptPassword(in io.Reader, w io.Writer) ([]byte, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		pw := strings.TrimRight(line, "\r\n")
		if len(pw) == 0 {
			return nil, errors.New("password must not be empty")
		}
		return []byte(pw), nil
	}

	fmt.Fprint(w, "Enter password: ")
	pw, err := readPassword(int(f.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, errors.New("password must not be empty")
	}

	fmt.Fprint(w, "Confirm password: ")
	confirm, err := readPassword(int(f.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(pw, confirm) {
		return nil, errors.New("passwords do not match")
	}
	return pw, nil
}
