// Package notify provides a command that sends a test notification.
package notify

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/o2cms/cfmigrate/internal/conf"
	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/notify"
)

// Command returns a cobra command that sends a test message to the
// configured notification URLs.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		title   string
		message string
		urls    []string
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test notification",
		Long: `Send a test message to the notification URLs from the configuration, or
to the URLs given with --url.

Examples:
  cfmigrate notify
  cfmigrate notify --url "slack://token@channel" --message "hello"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := settings.Notify.URLs
			if len(urls) > 0 {
				targets = urls
			}
			if len(targets) == 0 {
				return errors.Newf("no notification URLs configured").
					Component("cli").
					Category(errors.CategoryConfiguration).
					Build()
			}

			n, err := notify.New(targets, settings.Notify.Timeout)
			if err != nil {
				return err
			}
			if err := n.Send(cmd.Context(), notify.Message{Title: title, Body: message}); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "sent to %d service(s)\n", len(targets))
			return err
		},
	}

	cmd.Flags().StringVar(&title, "title", "cfmigrate test", "Notification title")
	cmd.Flags().StringVar(&message, "message", "Test notification sent at "+time.Now().Format(time.RFC3339), "Notification body")
	cmd.Flags().StringSliceVar(&urls, "url", nil, "Service URL overriding the configuration (repeatable)")

	return cmd
}
