package notify

import (
	"testing"
	"time"

	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2cms/cfmigrate/internal/errors"
)

type fakeSender struct {
	messages []string
	titles   []string
	errs     []error
}

func (f *fakeSender) Send(message string, params *stypes.Params) []error {
	f.messages = append(f.messages, message)
	if params != nil {
		if title, ok := (*params)["title"]; ok {
			f.titles = append(f.titles, title)
		}
	}
	return f.errs
}

func TestNewWithoutURLsIsDisabled(t *testing.T) {
	t.Parallel()
	n, err := New(nil, 0)
	require.NoError(t, err)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Send(t.Context(), Message{Body: "ignored"}))
}

func TestNewRejectsUnknownService(t *testing.T) {
	t.Parallel()
	_, err := New([]string{"nosuchservice://secret-token@host"}, time.Second)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestSendDelivers(t *testing.T) {
	t.Parallel()
	fake := &fakeSender{errs: []error{nil}}
	n := &Notifier{urls: []string{"a"}, sender: fake}

	require.NoError(t, n.Send(t.Context(), Message{Title: "done", Body: "all good"}))
	assert.Equal(t, []string{"all good"}, fake.messages)
	assert.Equal(t, []string{"done"}, fake.titles)
}

func TestSendJoinsFailuresAndScrubsURLs(t *testing.T) {
	t.Parallel()
	fake := &fakeSender{errs: []error{
		nil,
		errors.NewStd("post https://hooks.example.com/T0/secret: 500"),
	}}
	n := &Notifier{urls: []string{"a", "b"}, sender: fake}

	err := n.Send(t.Context(), Message{Body: "x"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryIntegration))
	assert.NotContains(t, err.Error(), "secret")
}

func TestFormatSummary(t *testing.T) {
	t.Parallel()
	msg := FormatSummary("run-1", []StageLine{
		{Name: "schemas", Total: 2, Migrated: 2},
		{Name: "assets", Total: 5, Migrated: 3, Skipped: 1, Failed: 1},
	}, 95*time.Second, "completed")

	assert.Equal(t, "cfmigrate: migration completed", msg.Title)
	assert.Equal(t, "Run run-1 completed after 1m35s\n"+
		"schemas: 2/2 migrated, 0 skipped, 0 failed\n"+
		"assets: 3/5 migrated, 1 skipped, 1 failed", msg.Body)
}
