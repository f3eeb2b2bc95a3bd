package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"svnscm/internal/credentials"
	"svnscm/internal/operation"
)

// terminalPrompter asks for credentials and upgrade confirmations on the
// controlling terminal. Without a terminal every prompt counts as cancelled.
type terminalPrompter struct {
	in  *os.File
	out io.Writer

	// mu keeps prompts of concurrent operations from interleaving.
	mu     sync.Mutex
	reader *bufio.Reader
}

func newTerminalPrompter(in *os.File, out io.Writer) *terminalPrompter {
	return &terminalPrompter{in: in, out: out, reader: bufio.NewReader(in)}
}

func (p *terminalPrompter) interactive() bool {
	return term.IsTerminal(int(p.in.Fd()))
}

func (p *terminalPrompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// PromptAuth reads a username (defaulting to prevUsername) and a password.
func (p *terminalPrompter) PromptAuth(ctx context.Context, root, prevUsername string) (credentials.Account, bool) {
	if !p.interactive() || ctx.Err() != nil {
		return credentials.Account{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "Authentication required for %s\n", root)
	if prevUsername != "" {
		fmt.Fprintf(p.out, "Username [%s]: ", prevUsername)
	} else {
		fmt.Fprint(p.out, "Username: ")
	}
	username, err := p.readLine()
	if err != nil {
		slog.Debug("[DEBUG-SCM] credential prompt aborted", "root", root, "error", err)
		return credentials.Account{}, false
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = prevUsername
	}
	if username == "" {
		return credentials.Account{}, false
	}

	fmt.Fprint(p.out, "Password: ")
	password, err := term.ReadPassword(int(p.in.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		slog.Debug("[DEBUG-SCM] password prompt aborted", "root", root, "error", err)
		return credentials.Account{}, false
	}
	return credentials.Account{Account: username, Password: string(password)}, true
}

// ConfirmUpgrade asks before running `svn upgrade` on path.
func (p *terminalPrompter) ConfirmUpgrade(ctx context.Context, path string) bool {
	if !p.interactive() || ctx.Err() != nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "The working copy at %s uses an old format. Upgrade it now? [y/N]: ", path)
	answer, err := p.readLine()
	if err != nil {
		return false
	}
	return parseYes(answer)
}

func parseYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// logProgress reports long-running operations in the log.
type logProgress struct{}

func (logProgress) Begin(root string, kind operation.Kind) func() {
	slog.Info("[DEBUG-SCM] operation started", "root", root, "operation", kind)
	return func() {
		slog.Info("[DEBUG-SCM] operation finished", "root", root, "operation", kind)
	}
}
