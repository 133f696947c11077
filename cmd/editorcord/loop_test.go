package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"tools.zach/dev/editorcord/internal/config"
	"tools.zach/dev/editorcord/internal/discord"
	"tools.zach/dev/editorcord/internal/editor"
	"tools.zach/dev/editorcord/internal/icons"
	"tools.zach/dev/editorcord/internal/metrics"
)

// ///////////////////////////////////////////////
// Test Helpers
// ///////////////////////////////////////////////

// fakeClient records the commands the loop sends.
type fakeClient struct {
	appID      string
	connected  bool
	connectErr error
	connects   int
	activities []*discord.Activity
	clears     int
	closed     bool
}

func (f *fakeClient) Connect() error {
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) SetActivity(a *discord.Activity) error {
	f.activities = append(f.activities, a)
	return nil
}

func (f *fakeClient) ClearActivity() error {
	f.clears++
	return nil
}

func (f *fakeClient) Connected() bool { return f.connected }

func (f *fakeClient) Close() error {
	f.closed = true
	f.connected = false
	return nil
}

var loopNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// testDaemon returns a daemon over a temp data dir with a connected fake
// client and a fixed clock at loopNow.
func testDaemon(t *testing.T, cfg *config.Config) (*daemon, *fakeClient) {
	t.Helper()
	dp := DataPaths{Root: t.TempDir()}
	client := &fakeClient{appID: cfg.Discord.AppID, connected: true}
	d := &daemon{
		cfg:       cfg,
		paths:     dp,
		builder:   newBuilder(cfg, icons.NewStore(nil), nil),
		metrics:   metrics.New(),
		client:    client,
		newClient: func(appID string) presenceClient { return &fakeClient{appID: appID} },
		now:       func() time.Time { return loopNow },
		ls:        loopState{activeAppID: cfg.Discord.AppID},
	}
	d.builder.Now = d.clock
	return d, client
}

// writeEditorState writes an editing state for editorID whose workspace is a
// temp dir, and returns that dir.
func writeEditorState(t *testing.T, d *daemon, editorID string, mutate func(*editor.State)) string {
	t.Helper()
	ws := filepath.Join(d.paths.Root, "ws")
	s := &editor.State{
		Editor:       editorID,
		Document:     &editor.Document{FileName: filepath.Join(ws, "main.go"), LanguageID: "go", LineCount: 10},
		Selection:    &editor.Position{},
		Workspace:    editor.Workspace{Folders: []editor.Folder{{Name: "ws", Path: ws}}},
		Focused:      true,
		LastActivity: loopNow.Unix(),
	}
	if mutate != nil {
		mutate(s)
	}
	if err := editor.WriteState(d.paths.StateForEditor(editorID), s); err != nil {
		t.Fatalf("WriteState() error: %v", err)
	}
	return ws
}

// ///////////////////////////////////////////////
// processState Tests
// ///////////////////////////////////////////////

func TestProcessState_NoState(t *testing.T) {
	d, client := testDaemon(t, config.DefaultConfig())
	d.processState(context.Background())
	if len(client.activities) != 0 || client.clears != 0 {
		t.Errorf("expected no commands without state, got %d activities, %d clears", len(client.activities), client.clears)
	}
}

func TestProcessState_PublishesAndSuppressesDuplicates(t *testing.T) {
	d, client := testDaemon(t, config.DefaultConfig())
	writeEditorState(t, d, "vscode", nil)

	d.processState(context.Background())
	d.processState(context.Background())

	if len(client.activities) != 1 {
		t.Fatalf("activities = %d, want 1", len(client.activities))
	}
	a := client.activities[0]
	if a.Details != "Editing main.go" {
		t.Errorf("Details = %q, want %q", a.Details, "Editing main.go")
	}
	if a.Timestamps == nil || a.Timestamps.Start != loopNow.Unix() {
		t.Errorf("Timestamps = %+v, want start %d", a.Timestamps, loopNow.Unix())
	}
	if got := testutil.ToFloat64(d.metrics.Suppressed); got != 1 {
		t.Errorf("suppressed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(d.metrics.Published.WithLabelValues("vscode")); got != 1 {
		t.Errorf("published = %v, want 1", got)
	}
}

func TestProcessState_StoppedClearsOnce(t *testing.T) {
	d, client := testDaemon(t, config.DefaultConfig())
	writeEditorState(t, d, "vscode", func(s *editor.State) { s.Stopped = true })

	d.processState(context.Background())
	d.processState(context.Background())

	if client.clears != 1 {
		t.Errorf("clears = %d, want 1", client.clears)
	}
	if len(client.activities) != 0 {
		t.Errorf("activities = %d, want 0", len(client.activities))
	}
	if got := testutil.ToFloat64(d.metrics.Cleared.WithLabelValues(clearStopped)); got != 1 {
		t.Errorf("cleared{stopped} = %v, want 1", got)
	}
}

func TestProcessState_IgnoredPathClears(t *testing.T) {
	cfg := config.DefaultConfig()
	d, client := testDaemon(t, cfg)
	ws := writeEditorState(t, d, "vscode", nil)
	cfg.Privacy.Ignore = []string{filepath.ToSlash(ws) + "/**"}

	d.processState(context.Background())

	if client.clears != 1 || len(client.activities) != 0 {
		t.Errorf("got %d clears and %d activities, want 1 clear", client.clears, len(client.activities))
	}
}

func TestProcessState_IdleClear(t *testing.T) {
	d, client := testDaemon(t, config.DefaultConfig())
	writeEditorState(t, d, "vscode", func(s *editor.State) {
		s.Focused = false
		s.LastActivity = loopNow.Add(-10 * time.Minute).Unix()
	})

	d.processState(context.Background())

	if client.clears != 1 || len(client.activities) != 0 {
		t.Errorf("got %d clears and %d activities, want 1 clear", client.clears, len(client.activities))
	}
}

func TestProcessState_IdleText(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Behavior.IdleMode = "idle_text"
	d, client := testDaemon(t, cfg)
	writeEditorState(t, d, "vscode", func(s *editor.State) {
		s.Focused = false
		s.LastActivity = loopNow.Add(-10 * time.Minute).Unix()
	})

	d.processState(context.Background())

	if len(client.activities) != 1 {
		t.Fatalf("activities = %d, want 1", len(client.activities))
	}
	a := client.activities[0]
	if a.Details != "Idling" {
		t.Errorf("Details = %q, want %q", a.Details, "Idling")
	}
	if a.Assets == nil || a.Assets.LargeImage != "idle" {
		t.Errorf("Assets = %+v, want idle large image", a.Assets)
	}
}

func TestProcessState_NewTimestampAfterClear(t *testing.T) {
	d, client := testDaemon(t, config.DefaultConfig())
	writeEditorState(t, d, "vscode", nil)
	d.processState(context.Background())

	writeEditorState(t, d, "vscode", func(s *editor.State) { s.Stopped = true })
	d.processState(context.Background())

	later := loopNow.Add(time.Hour)
	d.now = func() time.Time { return later }
	writeEditorState(t, d, "vscode", func(s *editor.State) { s.LastActivity = later.Unix() })
	d.processState(context.Background())

	if len(client.activities) != 2 {
		t.Fatalf("activities = %d, want 2", len(client.activities))
	}
	if got := client.activities[1].Timestamps.Start; got != later.Unix() {
		t.Errorf("second start = %d, want %d", got, later.Unix())
	}
}

func TestProcessState_TimestampCarriedWhileEditing(t *testing.T) {
	d, client := testDaemon(t, config.DefaultConfig())
	writeEditorState(t, d, "vscode", nil)
	d.processState(context.Background())

	later := loopNow.Add(time.Minute)
	d.now = func() time.Time { return later }
	writeEditorState(t, d, "vscode", func(s *editor.State) {
		s.Selection = &editor.Position{Line: 5}
		s.LastActivity = later.Unix()
	})
	d.builder.Config.Display.StateEditing = "Line {current_line}"
	d.processState(context.Background())

	if len(client.activities) != 2 {
		t.Fatalf("activities = %d, want 2", len(client.activities))
	}
	if got := client.activities[1].Timestamps.Start; got != loopNow.Unix() {
		t.Errorf("carried start = %d, want %d", got, loopNow.Unix())
	}
}

func TestProcessState_EditorAppIDSwitch(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Editors = map[string]config.EditorConfig{"cursor": {AppID: "999"}}
	d, old := testDaemon(t, cfg)
	writeEditorState(t, d, "cursor", nil)

	d.processState(context.Background())

	if !old.closed {
		t.Error("previous client should be closed")
	}
	next, ok := d.client.(*fakeClient)
	if !ok || next.appID != "999" {
		t.Fatalf("client = %+v, want fake client for app 999", d.client)
	}
	if !next.connected || len(next.activities) != 1 {
		t.Errorf("new client connected=%v activities=%d", next.connected, len(next.activities))
	}
	if d.ls.activeAppID != "999" || d.ls.activeEditor != "cursor" {
		t.Errorf("loop state = %+v", d.ls)
	}
}

// ///////////////////////////////////////////////
// Reconnect Tests
// ///////////////////////////////////////////////

func TestHandleReconnect(t *testing.T) {
	d, client := testDaemon(t, config.DefaultConfig())
	client.connected = false
	d.ls.lastHash = "stale"

	if err := d.handleReconnect(); err != nil {
		t.Fatalf("handleReconnect() error: %v", err)
	}
	if client.connects != 1 || d.ls.lastHash != "" {
		t.Errorf("connects = %d, lastHash = %q", client.connects, d.ls.lastHash)
	}
	if got := testutil.ToFloat64(d.metrics.Connected); got != 1 {
		t.Errorf("connected gauge = %v, want 1", got)
	}
}

func TestHandleReconnect_AlreadyConnected(t *testing.T) {
	d, client := testDaemon(t, config.DefaultConfig())
	if err := d.handleReconnect(); err != nil {
		t.Fatalf("handleReconnect() error: %v", err)
	}
	if client.connects != 0 {
		t.Errorf("connects = %d, want 0", client.connects)
	}
}

func TestConnectWithRetry_GivesUp(t *testing.T) {
	client := &fakeClient{connectErr: errors.New("no discord")}
	if err := connectWithRetry(client, 0); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if client.connects != connectAttempts {
		t.Errorf("connects = %d, want %d", client.connects, connectAttempts)
	}
}

// ///////////////////////////////////////////////
// run Tests
// ///////////////////////////////////////////////

func TestRun_StopsOnSignal(t *testing.T) {
	d, client := testDaemon(t, config.DefaultConfig())
	writeEditorState(t, d, "vscode", nil)

	signals := make(chan os.Signal, 1)
	signals <- os.Interrupt

	done := make(chan struct{})
	go func() {
		d.run(context.Background(), nil, nil, signals)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop on signal")
	}
	if len(client.activities) != 1 {
		t.Errorf("activities = %d, want the initial publish", len(client.activities))
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	d, _ := testDaemon(t, config.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		d.run(ctx, nil, nil, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
}

// ///////////////////////////////////////////////
// Idle Helpers Tests
// ///////////////////////////////////////////////

func TestCheckDaemonIdle(t *testing.T) {
	tests := []struct {
		name    string
		last    time.Time
		minutes int64
		want    bool
	}{
		{"disabled when zero", time.Now().Add(-time.Hour), 0, false},
		{"never active", time.Time{}, 30, false},
		{"not idle yet", time.Now(), 30, false},
		{"idle timeout", time.Now().Add(-31 * time.Minute), 30, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkDaemonIdle(&loopState{lastActivityTime: tt.last}, tt.minutes); got != tt.want {
				t.Errorf("checkDaemonIdle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsIdle(t *testing.T) {
	old := loopNow.Add(-10 * time.Minute).Unix()
	recent := loopNow.Add(-time.Minute).Unix()
	tests := []struct {
		name    string
		state   editor.State
		timeout int
		want    bool
	}{
		{"focused is never idle", editor.State{Focused: true, LastActivity: old}, 300, false},
		{"unfocused past timeout", editor.State{LastActivity: old}, 300, true},
		{"unfocused within timeout", editor.State{LastActivity: recent}, 300, false},
		{"disabled", editor.State{LastActivity: old}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isIdle(&tt.state, tt.timeout, loopNow); got != tt.want {
				t.Errorf("isIdle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWatchedPaths(t *testing.T) {
	s := &editor.State{
		Document:  &editor.Document{FileName: "/w/a/main.go"},
		Workspace: editor.Workspace{Folders: []editor.Folder{{Path: "/w/a"}, {Path: "/w/b"}}},
	}
	got := watchedPaths(s)
	want := []string{"/w/a", "/w/b", "/w/a/main.go"}
	if len(got) != len(want) {
		t.Fatalf("watchedPaths() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("watchedPaths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// ///////////////////////////////////////////////
// scheduleRefresh Tests
// ///////////////////////////////////////////////

func TestScheduleRefresh_Empty(t *testing.T) {
	stop, err := scheduleRefresh(context.Background(), "", func(context.Context) { t.Error("unexpected run") })
	if err != nil {
		t.Fatalf("scheduleRefresh() error: %v", err)
	}
	stop()
}

func TestScheduleRefresh_Invalid(t *testing.T) {
	if _, err := scheduleRefresh(context.Background(), "not a schedule", func(context.Context) {}); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestScheduleRefresh_Runs(t *testing.T) {
	ran := make(chan struct{}, 1)
	stop, err := scheduleRefresh(context.Background(), "@every 1s", func(context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("scheduleRefresh() error: %v", err)
	}
	defer stop()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled refresh did not run")
	}
}
