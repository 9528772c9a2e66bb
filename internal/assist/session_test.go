package assist

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flemzord/coauthor/internal/security"
	"github.com/flemzord/coauthor/internal/session"
)

func TestStartSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, noProvider())
	ctx := context.Background()

	res, err := f.svc.StartSession(ctx, StartRequest{AccessCode: "demo"})
	require.NoError(t, err)

	assert.Equal(t, "session01", res.SessionID)
	assert.Equal(t, "Once upon a time.\n ", res.ExampleText)
	assert.Equal(t, "Write a story.", res.PromptText)

	fields := res.Fields()
	assert.Equal(t, "demo", fields["access_code"])
	assert.Equal(t, "session01", fields["session_id"])
	assert.Equal(t, "story", fields["domain"])
	assert.Equal(t, 3, fields["n"])
	assert.Equal(t, "A", fields["cohort"])
	assert.Equal(t, []string{"."}, fields["stop"])

	sess, err := f.sessions.Get(ctx, "session01")
	require.NoError(t, err)
	assert.Equal(t, "session01", sess.VerificationCode)
	assert.True(t, sess.StartedAt.Equal(epoch))

	raw, err := f.metadata.Lookup("session01")
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, "demo", rec["access_code"])
	assert.Equal(t, float64(epoch.Unix()), rec["start_timestamp"])

	_, err = f.index.Lookup(ctx, "session01")
	assert.NoError(t, err)

	events := f.auditEvents()
	require.Len(t, events, 1)
	assert.Equal(t, security.EventSessionStart, events[0].Type)
	assert.Equal(t, "session01", events[0].SessionID)
}

func TestStartSession_InvalidAccessCode(t *testing.T) {
	t.Parallel()
	f := newFixture(t, noProvider())

	tests := []struct {
		code string
		want string
	}{
		{"nope", "Invalid access code: nope. Please check your access code in URL."},
		{"", "Invalid access code: (not provided). Please check your access code in URL."},
	}
	for _, tt := range tests {
		_, err := f.svc.StartSession(context.Background(), StartRequest{AccessCode: tt.code})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidAccessCode)

		var failure *Failure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, tt.want, failure.Message)
	}

	n, _ := f.sessions.Len(context.Background())
	assert.Zero(t, n)
	assert.Equal(t, security.EventInvalidCode, f.auditEvents()[0].Type)
}

func TestStartSession_PicksUpNewAccessCodes(t *testing.T) {
	t.Parallel()
	f := newFixture(t, noProvider())

	_, err := f.svc.StartSession(context.Background(), StartRequest{AccessCode: "late"})
	require.ErrorIs(t, err, ErrInvalidAccessCode)

	writeFile(t, f.svc.Catalog().Dir(), "access_code_late.csv", "access_code,domain\nlate,essay\n")

	res, err := f.svc.StartSession(context.Background(), StartRequest{AccessCode: "late"})
	require.NoError(t, err)
	assert.Equal(t, "essay", res.Config.Domain)
	assert.Equal(t, "", res.ExampleText)
}

func TestStartSession_UnknownExample(t *testing.T) {
	t.Parallel()
	f := newFixture(t, noProvider())

	_, err := f.svc.StartSession(context.Background(), StartRequest{AccessCode: "broken"})
	require.ErrorIs(t, err, ErrUnknownExample)
	assert.EqualError(t, err, "Unknown example: missing.")
}

func TestStartSession_MaxSessions(t *testing.T) {
	t.Parallel()
	f := newFixture(t, noProvider(), withLimiter(security.RateLimitConfig{MaxSessions: 1}))

	f.start(t)
	_, err := f.svc.StartSession(context.Background(), StartRequest{AccessCode: "demo"})
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestStartSession_RateLimited(t *testing.T) {
	t.Parallel()
	f := newFixture(t, noProvider(), withLimiter(security.RateLimitConfig{SessionsPerMin: 1}))
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, StartRequest{AccessCode: "demo", ClientAddr: "10.0.0.1"})
	require.NoError(t, err)
	_, err = f.svc.StartSession(ctx, StartRequest{AccessCode: "demo", ClientAddr: "10.0.0.1"})
	assert.ErrorIs(t, err, security.ErrRateLimited)
	_, err = f.svc.StartSession(ctx, StartRequest{AccessCode: "demo", ClientAddr: "10.0.0.2"})
	assert.NoError(t, err)
}

func TestEndSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, noProvider())
	id := f.start(t)

	logs := []json.RawMessage{
		json.RawMessage(`{"eventName": "system-initialize", "currentDoc": "Hi"}`),
		json.RawMessage(`{"eventName": "text-insert"}`),
	}
	res := f.svc.EndSession(context.Background(), EndRequest{SessionID: id, Logs: logs})

	assert.True(t, res.Saved)
	assert.Empty(t, res.Message)
	assert.Equal(t, id, res.VerificationCode)
	assert.Equal(t, filepath.Join(f.logDir, "proj", id+".jsonl"), res.Path)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t,
		`{"eventName":"system-initialize","currentDoc":"Hi"}`+"\n"+`{"eventName":"text-insert"}`+"\n",
		string(data))

	// Ending twice succeeds again; the session stays registered.
	again := f.svc.EndSession(context.Background(), EndRequest{SessionID: id, Logs: logs})
	assert.True(t, again.Saved)
	assert.Equal(t, id, again.VerificationCode)
}

func TestEndSession_UnknownSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, noProvider())

	res := f.svc.EndSession(context.Background(), EndRequest{SessionID: "ghost", Logs: nil})
	assert.True(t, res.Saved)
	assert.Equal(t, VerificationServerError, res.VerificationCode)
}

func TestEndSession_SaveFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, noProvider())
	id := f.start(t)

	res := f.svc.EndSession(context.Background(), EndRequest{
		SessionID: id,
		Logs:      []json.RawMessage{json.RawMessage(`{not json`)},
	})
	assert.False(t, res.Saved)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, id, res.VerificationCode)

	events := f.auditEvents()
	assert.Equal(t, security.EventSessionEnd, events[len(events)-1].Type)
}

func TestReport(t *testing.T) {
	t.Parallel()
	f := newFixture(t, noProvider())
	f.start(t)
	f.start(t)

	report, err := f.svc.Report(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Len(t, report.Recent, 2)
}

func TestFailure_Unwrap(t *testing.T) {
	t.Parallel()

	err := error(fail(session.ErrNotFound, "gone"))
	assert.EqualError(t, err, "gone")
	assert.True(t, errors.Is(err, session.ErrNotFound))
}
