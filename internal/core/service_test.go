package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/SmartMerge/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Import: config.ImportConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
		},
		Session: config.SessionConfig{
			TTL:             time.Hour,
			JanitorInterval: time.Minute,
			MaxSessions:     3,
			MaxFiles:        4,
		},
	}
}

func newTestService() *Service {
	return NewService(testConfig())
}

func mustSession(t *testing.T, svc *Service) string {
	t.Helper()
	state, err := svc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return state.ID
}

func addCSV(t *testing.T, svc *Service, id, name, content string) *SessionState {
	t.Helper()
	state, msgs, err := svc.AddFile(context.Background(), id, name, int64(len(content)), []byte(content))
	if err != nil {
		t.Fatalf("AddFile(%s) error = %v", name, err)
	}
	for _, m := range msgs {
		if m.Severity == SeverityError {
			t.Fatalf("AddFile(%s) reported %q", name, m.Text)
		}
	}
	return state
}

func TestService_SessionLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	id := mustSession(t, svc)

	state, err := svc.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if state.ID != id || state.HasMerged || state.Halted {
		t.Errorf("fresh session state = %+v", state)
	}

	if err := svc.DeleteSession(ctx, id); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := svc.GetSession(ctx, id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession() after delete = %v, want ErrSessionNotFound", err)
	}
}

func TestService_SessionCapacity(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.CreateSession(ctx); err != nil {
			t.Fatalf("CreateSession() %d error = %v", i, err)
		}
	}
	if _, err := svc.CreateSession(ctx); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("CreateSession() over capacity = %v, want ErrTooManySessions", err)
	}
}

func TestService_AddFile(t *testing.T) {
	svc := newTestService()
	id := mustSession(t, svc)

	state := addCSV(t, svc, id, "people.csv", "id,name,completion %\n1,Alice,80\n2,Bob,\n")

	if len(state.Files) != 1 {
		t.Fatalf("Files = %d, want 1", len(state.Files))
	}
	f := state.Files[0]
	if f.Name != "people.csv" || f.Used {
		t.Errorf("file state = %+v", f)
	}
	// The row with a missing completion value was cleaned away.
	if f.Rows != 1 {
		t.Errorf("Rows = %d, want 1 after cleaning", f.Rows)
	}
}

func TestService_AddFileLoadFailureIsRecoverable(t *testing.T) {
	svc := newTestService()
	id := mustSession(t, svc)

	state, msgs, err := svc.AddFile(context.Background(), id, "empty.csv", 0, nil)
	if err != nil {
		t.Fatalf("AddFile() error = %v, want nil for a per-file failure", err)
	}

	if len(state.Files) != 0 {
		t.Errorf("failed file should not be stored, Files = %v", state.Files)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %v, want error + skip warning", msgs)
	}
	if msgs[0].Severity != SeverityError {
		t.Errorf("first message severity = %q, want error", msgs[0].Severity)
	}
	if msgs[1].Severity != SeverityWarning || !strings.Contains(msgs[1].Text, "Skipping cleaning") {
		t.Errorf("second message = %+v, want skip-cleaning warning", msgs[1])
	}
}

func TestService_AddFileTooLarge(t *testing.T) {
	svc := newTestService()
	id := mustSession(t, svc)

	content := "id\n1\n"
	_, msgs, err := svc.AddFile(context.Background(), id, "big.csv", 2<<20, []byte(content))
	if err != nil {
		t.Fatalf("AddFile() error = %v, want nil", err)
	}
	if len(msgs) != 1 || msgs[0].Severity != SeverityError {
		t.Fatalf("messages = %v, want a single error message", msgs)
	}
}

func TestService_FileCapacity(t *testing.T) {
	svc := newTestService()
	id := mustSession(t, svc)

	for _, name := range []string{"a.csv", "b.csv", "c.csv", "d.csv"} {
		addCSV(t, svc, id, name, "id\n1\n")
	}

	_, _, err := svc.AddFile(context.Background(), id, "e.csv", 5, []byte("id\n1\n"))
	if !errors.Is(err, ErrTooManyFiles) {
		t.Errorf("AddFile() over capacity = %v, want ErrTooManyFiles", err)
	}

	// Replacing an existing unmerged file is not a capacity violation.
	if _, _, err := svc.AddFile(context.Background(), id, "a.csv", 5, []byte("id\n2\n")); err != nil {
		t.Errorf("replacing a.csv error = %v", err)
	}
}

func TestService_MergeChain(t *testing.T) {
	svc := newTestService()
	id := mustSession(t, svc)
	ctx := context.Background()

	addCSV(t, svc, id, "a.csv", "id,name\n1,Alice\n2,Bob\n")
	addCSV(t, svc, id, "b.csv", "ref,dept\n1,Eng\n2,Sales\n")
	addCSV(t, svc, id, "c.csv", "emp,site\n1,Oslo\n")

	// Initial step needs two distinct files.
	_, _, err := svc.MergeStep(ctx, id, MergeRequest{
		Secondary: "b.csv", PrimaryKey: "id", SecondaryKey: "ref",
	})
	if err == nil {
		t.Fatal("initial MergeStep without primary should fail")
	}

	state, msgs, err := svc.MergeStep(ctx, id, MergeRequest{
		Primary: "a.csv", Secondary: "b.csv", PrimaryKey: "id", SecondaryKey: "ref",
	})
	if err != nil {
		t.Fatalf("initial MergeStep error = %v", err)
	}
	if !state.HasMerged || state.MergedRows != 2 {
		t.Errorf("state after initial merge = %+v", state)
	}
	if len(msgs) != 1 || msgs[0].Severity != SeveritySuccess {
		t.Errorf("messages = %v, want one success", msgs)
	}
	if got := state.RemainingFiles; len(got) != 1 || got[0] != "c.csv" {
		t.Errorf("RemainingFiles = %v, want [c.csv]", got)
	}

	// Later steps must leave Primary empty.
	_, _, err = svc.MergeStep(ctx, id, MergeRequest{
		Primary: "a.csv", Secondary: "c.csv", PrimaryKey: "id", SecondaryKey: "emp",
	})
	if err == nil {
		t.Fatal("later MergeStep with primary set should fail")
	}

	state, _, err = svc.MergeStep(ctx, id, MergeRequest{
		Secondary: "c.csv", PrimaryKey: "id", SecondaryKey: "emp",
	})
	if err != nil {
		t.Fatalf("second MergeStep error = %v", err)
	}
	if state.MergedRows != 2 {
		t.Errorf("MergedRows = %d, want left join to preserve base rows", state.MergedRows)
	}
	if len(state.RemainingFiles) != 0 {
		t.Errorf("RemainingFiles = %v, want none", state.RemainingFiles)
	}

	// Each file enters the chain at most once.
	_, _, err = svc.MergeStep(ctx, id, MergeRequest{
		Secondary: "b.csv", PrimaryKey: "id", SecondaryKey: "ref",
	})
	if !errors.Is(err, ErrFileAlreadyMerged) {
		t.Errorf("re-merging b.csv = %v, want ErrFileAlreadyMerged", err)
	}
}

func TestService_DuplicateKeysHaltWorkflow(t *testing.T) {
	svc := newTestService()
	id := mustSession(t, svc)
	ctx := context.Background()

	addCSV(t, svc, id, "a.csv", "id\n1\n")
	addCSV(t, svc, id, "b.csv", "ref,x\n1,p\n1,q\n")
	addCSV(t, svc, id, "c.csv", "ref,y\n1,r\n")

	state, msgs, err := svc.MergeStep(ctx, id, MergeRequest{
		Primary: "a.csv", Secondary: "b.csv", PrimaryKey: "id", SecondaryKey: "ref",
	})

	var dupErr *DuplicateKeyError
	if !errors.As(err, &dupErr) {
		t.Fatalf("MergeStep error = %v, want *DuplicateKeyError", err)
	}
	if !state.Halted {
		t.Error("session should be halted after duplicate keys")
	}
	if len(msgs) != 1 || msgs[0].Severity != SeverityError {
		t.Errorf("messages = %v, want one error message", msgs)
	}

	// Every further step is refused while halted.
	_, _, err = svc.MergeStep(ctx, id, MergeRequest{
		Primary: "a.csv", Secondary: "c.csv", PrimaryKey: "id", SecondaryKey: "ref",
	})
	if !errors.Is(err, ErrWorkflowHalted) {
		t.Errorf("MergeStep while halted = %v, want ErrWorkflowHalted", err)
	}

	state, err = svc.ResetHalt(ctx, id)
	if err != nil {
		t.Fatalf("ResetHalt() error = %v", err)
	}
	if state.Halted {
		t.Error("session still halted after ResetHalt")
	}

	if _, _, err = svc.MergeStep(ctx, id, MergeRequest{
		Primary: "a.csv", Secondary: "c.csv", PrimaryKey: "id", SecondaryKey: "ref",
	}); err != nil {
		t.Errorf("MergeStep after ResetHalt error = %v", err)
	}
}

func TestService_RecoverableMergeFailureKeepsBase(t *testing.T) {
	svc := newTestService()
	id := mustSession(t, svc)
	ctx := context.Background()

	addCSV(t, svc, id, "a.csv", "id\n1\n")
	addCSV(t, svc, id, "b.csv", "ref\n1\n")

	// Nonexistent key column: recoverable, chain not started.
	state, msgs, err := svc.MergeStep(ctx, id, MergeRequest{
		Primary: "a.csv", Secondary: "b.csv", PrimaryKey: "nope", SecondaryKey: "ref",
	})
	if err != nil {
		t.Fatalf("MergeStep error = %v, want nil for recoverable failure", err)
	}
	if state.HasMerged {
		t.Error("failed merge should not produce a merged table")
	}
	if state.Halted {
		t.Error("recoverable failure should not halt the workflow")
	}
	if len(msgs) != 1 || msgs[0].Severity != SeverityError {
		t.Errorf("messages = %v, want one error message", msgs)
	}

	// The corrected retry works.
	if _, _, err := svc.MergeStep(ctx, id, MergeRequest{
		Primary: "a.csv", Secondary: "b.csv", PrimaryKey: "id", SecondaryKey: "ref",
	}); err != nil {
		t.Errorf("corrected MergeStep error = %v", err)
	}
}

func TestService_SelectColumnsAndExport(t *testing.T) {
	svc := newTestService()
	id := mustSession(t, svc)
	ctx := context.Background()

	if _, _, err := svc.SelectColumns(ctx, id, []string{"id"}); !errors.Is(err, ErrNoMergedTable) {
		t.Errorf("SelectColumns before merge = %v, want ErrNoMergedTable", err)
	}

	addCSV(t, svc, id, "a.csv", "id,name\n1,Alice\n")
	addCSV(t, svc, id, "b.csv", "ref,dept\n1,Eng\n")
	if _, _, err := svc.MergeStep(ctx, id, MergeRequest{
		Primary: "a.csv", Secondary: "b.csv", PrimaryKey: "id", SecondaryKey: "ref",
	}); err != nil {
		t.Fatalf("MergeStep error = %v", err)
	}

	if _, _, err := svc.SelectColumns(ctx, id, []string{"ghost"}); !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("SelectColumns unknown = %v, want ErrColumnNotFound", err)
	}

	_, msgs, err := svc.SelectColumns(ctx, id, nil)
	if err != nil {
		t.Fatalf("SelectColumns(empty) error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Severity != SeverityWarning {
		t.Errorf("empty selection messages = %v, want one warning", msgs)
	}

	if _, _, err := svc.SelectColumns(ctx, id, []string{"name", "dept"}); err != nil {
		t.Fatalf("SelectColumns error = %v", err)
	}

	name, data, err := svc.Export(ctx, id, "", FormatCSV)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if name != "Merged_File.csv" {
		t.Errorf("export name = %q, want default with .csv appended", name)
	}
	out := string(data)
	if !strings.HasPrefix(out, "name,dept\n") {
		t.Errorf("export should contain only the selected columns, got %q", out)
	}
	if strings.Contains(out, "id") {
		t.Errorf("deselected column leaked into export: %q", out)
	}
}

func TestService_MergeInvalidatesSelection(t *testing.T) {
	svc := newTestService()
	id := mustSession(t, svc)
	ctx := context.Background()

	addCSV(t, svc, id, "a.csv", "id\n1\n")
	addCSV(t, svc, id, "b.csv", "ref,x\n1,p\n")
	addCSV(t, svc, id, "c.csv", "ref,y\n1,q\n")

	if _, _, err := svc.MergeStep(ctx, id, MergeRequest{
		Primary: "a.csv", Secondary: "b.csv", PrimaryKey: "id", SecondaryKey: "ref",
	}); err != nil {
		t.Fatalf("MergeStep error = %v", err)
	}
	if _, _, err := svc.SelectColumns(ctx, id, []string{"x"}); err != nil {
		t.Fatalf("SelectColumns error = %v", err)
	}

	state, _, err := svc.MergeStep(ctx, id, MergeRequest{
		Secondary: "c.csv", PrimaryKey: "id", SecondaryKey: "ref",
	})
	if err != nil {
		t.Fatalf("second MergeStep error = %v", err)
	}
	if len(state.SelectedColumns) != 0 {
		t.Errorf("SelectedColumns = %v, want selection reset after new merge", state.SelectedColumns)
	}
}

func TestService_SessionExpiry(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	now := time.Now()
	svc.now = func() time.Time { return now }

	id := mustSession(t, svc)

	if expired := svc.expireSessions(now.Add(30 * time.Minute)); expired != 0 {
		t.Errorf("expired = %d before TTL, want 0", expired)
	}

	if expired := svc.expireSessions(now.Add(2 * time.Hour).Add(time.Minute)); expired != 1 {
		t.Errorf("expired = %d after TTL, want 1", expired)
	}
	if _, err := svc.GetSession(ctx, id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession() after expiry = %v, want ErrSessionNotFound", err)
	}
}

func TestService_SessionExpiryRefreshedByActivity(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	now := time.Now()
	svc.now = func() time.Time { return now }

	id := mustSession(t, svc)

	// Activity 90 minutes in pushes the expiry window forward.
	now = now.Add(90 * time.Minute)
	if _, _, err := svc.AddFile(ctx, id, "a.csv", 5, []byte("id\n1\n")); err != nil {
		t.Fatalf("AddFile() error = %v", err)
	}

	if expired := svc.expireSessions(now.Add(50 * time.Minute)); expired != 0 {
		t.Errorf("expired = %d, want 0 after recent activity", expired)
	}
}

func TestMapError_Codes(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{&LoadError{File: "f", Reason: LoadEmpty}, "FILE001"},
		{&LoadError{File: "f", Reason: LoadNoData}, "FILE002"},
		{&LoadError{File: "f", Reason: LoadParseFailure, Err: errors.New("boom")}, "FILE003"},
		{&DuplicateKeyError{Key: "id", Values: []string{"1"}}, "MRG001"},
		{&MergeError{Err: errors.New("boom")}, "MRG002"},
		{ErrWorkflowHalted, "MRG003"},
		{ErrFileAlreadyMerged, "MRG004"},
		{ErrSessionNotFound, "SES001"},
		{ErrTooManyImports, "IMP001"},
		{ErrColumnNotFound, "COL002"},
		{errors.New("anything else"), "GEN001"},
	}

	for _, tt := range tests {
		if got := MapError(tt.err).Code; got != tt.code {
			t.Errorf("MapError(%v).Code = %q, want %q", tt.err, got, tt.code)
		}
	}
}
