package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/benzinger-icl/karidf-scripts/internal/logger"
	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
	"github.com/benzinger-icl/karidf-scripts/pkg/session"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// credentialSource resolves the archive credentials of a run. Flags win over the
// environment, the environment over the config file; a missing password is prompted for.
type credentialSource struct {
	flagUser     string
	flagPassword string
	configUser   string

	env    *viper.Viper
	prompt func(label string) (string, error)
}

func newCredentialSource(flagUser, flagPassword, configUser string) *credentialSource {
	env := viper.New()
	env.SetEnvPrefix(EnvPrefix)
	_ = env.BindEnv("user")
	_ = env.BindEnv("password")

	return &credentialSource{
		flagUser:     flagUser,
		flagPassword: flagPassword,
		configUser:   configUser,
		env:          env,
		prompt:       promptTerminal,
	}
}

func (c *credentialSource) user() (string, error) {
	for _, u := range []string{c.flagUser, c.env.GetString("user"), c.configUser} {
		if u != "" {
			return u, nil
		}
	}
	return c.prompt("User: ")
}

func (c *credentialSource) password() (string, bool) {
	if c.flagPassword != "" {
		return c.flagPassword, true
	}
	if p := c.env.GetString("password"); p != "" {
		return p, true
	}
	return "", false
}

// openSession opens the archive session. A rejected password is prompted for again, up to
// MaxPasswordAttempts times; a password given by flag or environment is tried once.
func openSession(ctx context.Context, sessions *session.Manager, creds *credentialSource) (*model.Session, error) {
	user, err := creds.user()
	if err != nil {
		return nil, err
	}

	if password, ok := creds.password(); ok {
		return sessions.Open(ctx, session.Credentials{User: user, Password: password})
	}

	var lastErr error
	for attempt := 1; attempt <= MaxPasswordAttempts; attempt++ {
		password, err := creds.prompt(fmt.Sprintf("Password for %s: ", user))
		if err != nil {
			return nil, err
		}
		s, err := sessions.Open(ctx, session.Credentials{User: user, Password: password})
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, pkgerrors.ErrInvalidCredentials) {
			return nil, err
		}
		lastErr = err
		logger.Warn("Invalid credentials", logger.Fields{"user": user, "attempt": attempt})
	}
	return nil, lastErr
}

// promptTerminal reads a line from the terminal without echo. When stdin is not a
// terminal the line is read as is.
func promptTerminal(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read from terminal: %w", err)
		}
		return string(b), nil
	}
	return readLine(os.Stdin)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read credentials: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
