package cli

import (
	"context"
	"fmt"

	"github.com/benzinger-icl/karidf-scripts/internal/logger"
	archivehttp "github.com/benzinger-icl/karidf-scripts/pkg/http"
	"github.com/benzinger-icl/karidf-scripts/pkg/session"
	"github.com/hashicorp/go-version"
	"github.com/spf13/cobra"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	var user, password string

	cmd := &cobra.Command{
		Use:   "check [SITE]",
		Short: "Check credentials and archive connectivity",
		Long:  "Open and close a session against the archive and print its version",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), args, user, password)
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "archive user name or token alias")
	cmd.Flags().StringVarP(&password, "password", "p", "", "archive password or token secret (prompted when omitted)")

	return cmd
}

func runCheck(ctx context.Context, args []string, user, password string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Archive.SiteURL = args[0]
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := archivehttp.NewHTTPClient(cfg.Archive.SiteURL, cfg.Archive.HTTPTimeout)
	if err != nil {
		return err
	}
	sessions := session.NewManager(client, cfg.Settings.StateDir,
		session.WithRetry(cfg.Archive.OpenAttempts, session.DefaultOpenDelay))

	sess, err := openSession(ctx, sessions, newCredentialSource(user, password, cfg.Archive.User))
	if err != nil {
		return err
	}
	defer func() {
		if err := sessions.Close(context.WithoutCancel(ctx), sess); err != nil {
			logger.Warn("Failed to close session", logger.Fields{"error": err.Error()})
		}
	}()

	v, err := client.Version(ctx, session.Authenticator(sess))
	if err != nil {
		return err
	}
	fmt.Printf("%s: authenticated as %s, archive version %s\n", cfg.Archive.SiteURL, sess.User, v)

	if oldest := version.Must(version.NewVersion(MinArchiveVersion)); v.LessThan(oldest) {
		logger.Warn("Archive is older than the oldest tested release", logger.Fields{"version": v.String(), "minimum": MinArchiveVersion})
	}
	return nil
}
