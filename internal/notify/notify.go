// Package notify delivers run summaries through shoutrrr service URLs.
package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/logger"
	"github.com/o2cms/cfmigrate/internal/privacy"
)

// DefaultTimeout bounds one delivery to all services.
const DefaultTimeout = 10 * time.Second

// Message is a notification.
type Message struct {
	Title string
	Body  string
}

// sender is the part of the shoutrrr router used here.
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// Notifier sends messages to every configured service URL.
type Notifier struct {
	urls   []string
	sender sender
}

// New validates urls and builds a Notifier. No urls yields a Notifier that
// does nothing.
func New(urls []string, timeout time.Duration) (*Notifier, error) {
	n := &Notifier{urls: slices.Clone(urls)}
	if len(n.urls) == 0 {
		return n, nil
	}

	r, err := shoutrrr.CreateSender(n.urls...)
	if err != nil {
		return nil, errors.New(privacy.WrapError(err)).
			Component("notify").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r.Timeout = timeout
	r.SetLogger(log.New(io.Discard, "", 0))
	n.sender = r
	return n, nil
}

// Enabled reports whether any service is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.sender != nil
}

// Send delivers msg. Failures of individual services are joined; the router
// applies its own timeout.
func (n *Notifier) Send(ctx context.Context, msg Message) error {
	if !n.Enabled() {
		return nil
	}
	_ = ctx

	params := stypes.Params{}
	if msg.Title != "" {
		params.SetTitle(msg.Title)
	}

	var failed []error
	for _, err := range n.sender.Send(msg.Body, &params) {
		if err != nil {
			failed = append(failed, privacy.WrapError(err))
		}
	}
	if len(failed) == 0 {
		GetLogger().Info("notification sent", logger.Int("services", len(n.urls)))
		return nil
	}
	return errors.New(errors.Join(failed...)).
		Component("notify").
		Category(errors.CategoryIntegration).
		Context("failed_services", len(failed)).
		Build()
}

// StageLine is one row of a run summary.
type StageLine struct {
	Name string

	Total, Migrated, Skipped, Failed int
}

// FormatSummary renders a plain-text run summary for chat services.
func FormatSummary(runID string, lines []StageLine, elapsed time.Duration, outcome string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s %s after %s\n", runID, outcome, elapsed.Round(time.Second))
	for _, l := range lines {
		fmt.Fprintf(&b, "%s: %d/%d migrated, %d skipped, %d failed\n",
			l.Name, l.Migrated, l.Total, l.Skipped, l.Failed)
	}
	return Message{
		Title: "cfmigrate: migration " + outcome,
		Body:  strings.TrimRight(b.String(), "\n"),
	}
}

var _ sender = (*router.ServiceRouter)(nil)
