package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) { r.reported = append(r.reported, ee) }
func (r *recordingReporter) IsEnabled() bool               { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderContext(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := Newf("create asset %s failed", "a1").
		Component("migrate").
		Category(CategoryItemFailure).
		ItemContext("assets", "a1").
		Context("status_code", 500).
		Build()

	assert.Equal(t, "migrate", ee.GetComponent())
	ctx := ee.GetContext()
	assert.Equal(t, "assets", ctx["stage"])
	assert.Equal(t, "a1", ctx["source_id"])
	assert.Equal(t, 500, ctx["status_code"])

	// The returned context is a copy
	ctx["stage"] = "changed"
	assert.Equal(t, "assets", ee.GetContext()["stage"])
}

func TestCategoryInheritedFromWrappedError(t *testing.T) {
	SetTelemetryReporter(nil)

	inner := Newf("no credential").Category(CategoryCredential).Build()
	outer := New(fmt.Errorf("sign url: %w", inner)).Build()

	assert.Equal(t, CategoryCredential, outer.Category)
	assert.True(t, IsCategory(outer, CategoryCredential))
}

func TestIsCategoryWalksChain(t *testing.T) {
	inner := Newf("rate limited").Category(CategoryRateLimit).Build()
	outer := New(fmt.Errorf("list assets: %w", inner)).Category(CategoryItemFailure).Build()

	assert.True(t, IsCategory(outer, CategoryItemFailure))
	assert.True(t, IsCategory(outer, CategoryRateLimit))
	assert.False(t, IsCategory(outer, CategoryFatal))
	assert.True(t, IsTransient(outer))
	assert.False(t, IsCategory(fmt.Errorf("plain"), CategoryGeneric))
}

func TestPriorityFallback(t *testing.T) {
	ee := NewStd("x")
	built := New(ee).Priority("bogus").Build()
	assert.Equal(t, PriorityMedium, built.Priority)

	built = New(ee).Priority(PriorityCritical).Build()
	assert.Equal(t, PriorityCritical, built.Priority)
}

func TestTelemetryReporterReceivesErrors(t *testing.T) {
	reporter := &recordingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := Newf("state file corrupt").Category(CategoryState).Build()

	require.Len(t, reporter.reported, 1)
	assert.Same(t, ee, reporter.reported[0])
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorCategory
	}{
		{"server returned 429", CategoryRateLimit},
		{"context deadline exceeded", CategoryTimeout},
		{"dial tcp: connection refused", CategoryNetwork},
		{"open /tmp/x: no such file", CategoryFileIO},
		{"invalid payload", CategoryValidation},
		{"something else", CategoryGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, detectCategory(fmt.Errorf("%s", tt.msg)))
		})
	}
}

func TestScrubMessage(t *testing.T) {
	msg := "GET https://images.secure.ctfassets.net/a/b.png?token=abc.def&policy=xyz failed"
	scrubbed := scrubMessage(msg)
	assert.NotContains(t, scrubbed, "abc.def")
	assert.NotContains(t, scrubbed, "xyz")
	assert.Contains(t, scrubbed, "https://images.secure.ctfassets.net/a/b.png?[REDACTED]")

	assert.Equal(t, "auth Bearer [REDACTED]", scrubMessage("auth Bearer CFPAT-secret123"))
}

func TestShouldReport(t *testing.T) {
	assert.True(t, shouldReport(&EnhancedError{Category: CategoryFatal}))
	assert.True(t, shouldReport(&EnhancedError{Category: CategoryItemFailure, Priority: PriorityHigh}))
	assert.False(t, shouldReport(&EnhancedError{Category: CategoryItemFailure}))
}
