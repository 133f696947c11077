package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"tools.zach/dev/editorcord/internal/config"
	"tools.zach/dev/editorcord/internal/discord"
	"tools.zach/dev/editorcord/internal/editor"
	"tools.zach/dev/editorcord/internal/logger"
	"tools.zach/dev/editorcord/internal/metrics"
	"tools.zach/dev/editorcord/internal/presence"
)

// Reasons reported when presence is cleared.
const (
	clearIdle    = "idle"
	clearIgnored = "ignored"
	clearStopped = "stopped"
)

// presenceClient is the part of [discord.Client] the loop drives.
type presenceClient interface {
	Connect() error
	SetActivity(*discord.Activity) error
	ClearActivity() error
	Connected() bool
	Close() error
}

func newDiscordClient(appID string) presenceClient {
	return discord.NewClient(appID)
}

// ///////////////////////////////////////////////
// Activity Mapping
// ///////////////////////////////////////////////

// toDiscordActivity converts a [presence.Payload] into the [discord.Activity]
// wire type, omitting empty optional sections.
func toDiscordActivity(p *presence.Payload) *discord.Activity {
	if p == nil {
		return nil
	}
	da := &discord.Activity{
		Details:  p.Details,
		State:    p.State,
		Instance: p.Instance,
	}
	if p.StartTimestamp != 0 || p.EndTimestamp != 0 {
		da.Timestamps = &discord.Timestamps{
			Start: p.StartTimestamp,
			End:   p.EndTimestamp,
		}
	}
	if p.LargeImageKey != "" || p.LargeImageText != "" || p.SmallImageKey != "" || p.SmallImageText != "" {
		da.Assets = &discord.Assets{
			LargeImage: p.LargeImageKey,
			LargeText:  p.LargeImageText,
			SmallImage: p.SmallImageKey,
			SmallText:  p.SmallImageText,
		}
	}
	if p.PartyID != "" || p.PartySize > 0 {
		da.Party = &discord.Party{ID: p.PartyID}
		if p.PartySize > 0 {
			da.Party.Size = []int{p.PartySize, max(p.PartyMax, p.PartySize)}
		}
	}
	if p.JoinSecret != "" || p.MatchSecret != "" || p.SpectateSecret != "" {
		da.Secrets = &discord.Secrets{
			Join:     p.JoinSecret,
			Match:    p.MatchSecret,
			Spectate: p.SpectateSecret,
		}
	}
	for _, b := range p.Buttons {
		da.Buttons = append(da.Buttons, discord.Button{
			Label: b.Label,
			URL:   b.URL,
		})
	}
	return da
}

// ///////////////////////////////////////////////
// Connect with Retry
// ///////////////////////////////////////////////

// connectAttempts bounds [connectWithRetry].
const connectAttempts = 10

// connectWithRetry attempts to connect up to [connectAttempts] times,
// sleeping interval between failures.
func connectWithRetry(client presenceClient, interval time.Duration) error {
	for i := range connectAttempts {
		err := client.Connect()
		if err == nil {
			return nil
		}
		slog.Warn("Discord connect attempt failed", "attempt", i+1, "error", err)
		if i < connectAttempts-1 {
			time.Sleep(interval)
		}
	}
	return fmt.Errorf("failed to connect after %d attempts", connectAttempts)
}

// ///////////////////////////////////////////////
// Event Loop
// ///////////////////////////////////////////////

// loopState holds mutable state carried across iterations of the event loop.
type loopState struct {
	// lastActivityTime is the last time an editor was actively in use, used
	// to evaluate the daemon idle timeout.
	lastActivityTime time.Time

	// lastPayload is the most recently built payload; its start timestamp
	// carries over to the next build. Nil after presence is cleared.
	lastPayload *presence.Payload

	// lastHash is the hash of the last payload sent to Discord.
	lastHash string

	// cleared tracks whether presence is already cleared, preventing repeated
	// ClearActivity calls.
	cleared bool

	// activeEditor is the editor of the most recently processed state.
	activeEditor string

	// activeAppID is the Discord application ID the client is connected with.
	activeAppID string
}

// daemon wires the loop's collaborators.
type daemon struct {
	cfg     *config.Config
	paths   DataPaths
	builder *presence.Builder
	metrics *metrics.Metrics

	client            presenceClient
	newClient         func(appID string) presenceClient
	reconnectInterval time.Duration

	// now defaults to time.Now.
	now func() time.Time

	ls loopState
}

func (d *daemon) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

// run is the main event loop. It rebuilds presence on watcher events, poll
// ticks and icon refreshes until a signal arrives, ctx is canceled, the
// daemon idle timeout fires, or Discord cannot be reached.
func (d *daemon) run(ctx context.Context, events <-chan struct{}, refreshed <-chan struct{}, signals <-chan os.Signal) {
	pollTicker := time.NewTicker(time.Duration(d.cfg.Behavior.PollIntervalSeconds) * time.Second)
	defer pollTicker.Stop()

	d.ls.lastActivityTime = d.clock()
	d.processState(ctx)

	for {
		select {
		case <-signals:
			slog.Info("received shutdown signal")
			return

		case <-ctx.Done():
			return

		case <-events:
			d.processState(ctx)

		case <-refreshed:
			d.processState(ctx)

		case <-pollTicker.C:
			d.processState(ctx)
			if checkDaemonIdle(&d.ls, int64(d.cfg.Behavior.DaemonIdleMinutes)) {
				return
			}
			if err := d.handleReconnect(); err != nil {
				return
			}
		}
	}
}

// checkDaemonIdle returns true if the daemon should exit due to idle timeout.
// A zero or negative daemonIdleMinutes value disables the check.
func checkDaemonIdle(ls *loopState, daemonIdleMinutes int64) bool {
	if daemonIdleMinutes <= 0 || ls.lastActivityTime.IsZero() {
		return false
	}
	idleDuration := time.Since(ls.lastActivityTime)
	if idleDuration > time.Duration(daemonIdleMinutes)*time.Minute {
		slog.Info("daemon idle timeout, exiting", "idle_minutes", int(idleDuration.Minutes()))
		return true
	}
	return false
}

// handleReconnect re-establishes a lost Discord connection. On success the
// payload hash is reset so the next update is re-sent.
func (d *daemon) handleReconnect() error {
	if d.client.Connected() {
		return nil
	}
	slog.Warn("Discord disconnected, attempting reconnect")
	d.metrics.SetConnected(false)
	d.metrics.Reconnects.Inc()
	if err := connectWithRetry(d.client, d.reconnectInterval); err != nil {
		slog.Error("reconnect failed", "error", err)
		return err
	}
	slog.Info("reconnected to Discord")
	d.metrics.SetConnected(true)
	d.ls.lastHash = ""
	d.ls.cleared = false
	return nil
}

// switchAppID reconnects with a different Discord application.
func (d *daemon) switchAppID(appID string) error {
	_ = d.client.Close()
	d.client = d.newClient(appID)
	d.metrics.SetConnected(false)
	if err := connectWithRetry(d.client, d.reconnectInterval); err != nil {
		return err
	}
	d.metrics.SetConnected(true)
	d.ls.activeAppID = appID
	d.ls.lastHash = ""
	d.ls.cleared = false
	return nil
}

// ///////////////////////////////////////////////
// State Processing
// ///////////////////////////////////////////////

// processState reads the most recently active editor's state, applies the
// stop, privacy and idle rules, builds a payload and publishes it when it
// differs from the last one sent.
func (d *daemon) processState(ctx context.Context) {
	state, err := editor.FindLatest(d.paths.Root)
	if state == nil {
		slog.Debug("no editor state", "error", err)
		return
	}

	profile := d.cfg.Editor(state.Editor)
	if d.ls.activeAppID != "" && profile.AppID != d.ls.activeAppID {
		slog.Info("active editor changed, reconnecting with new AppID",
			"old_editor", d.ls.activeEditor,
			"new_editor", state.Editor,
			"new_app_id", profile.AppID,
		)
		if err := d.switchAppID(profile.AppID); err != nil {
			slog.Error("reconnect with new AppID failed", "error", err)
			return
		}
	}
	d.ls.activeEditor = state.Editor
	d.ls.activeAppID = profile.AppID

	now := d.clock()
	switch {
	case state.Stopped:
		d.clearPresence(clearStopped)
		return
	case d.cfg.IsIgnored(watchedPaths(state)...):
		d.clearPresence(clearIgnored)
		return
	}

	if isIdle(state, d.cfg.Behavior.IdleTimeoutSeconds, now) {
		if d.cfg.Behavior.IdleMode != "idle_text" {
			d.clearPresence(clearIdle)
			return
		}
		idle := *state
		idle.Document = nil
		idle.Selection = nil
		state = &idle
	} else {
		d.ls.lastActivityTime = now
	}

	payload := d.builder.Build(ctx, state, d.ls.lastPayload)
	d.publish(payload, state.Editor, now)
}

// publish sends p unless it matches the last payload sent.
func (d *daemon) publish(p *presence.Payload, editorID string, now time.Time) {
	d.ls.lastPayload = p
	d.ls.cleared = false

	hash := p.Hash()
	if hash == d.ls.lastHash {
		d.metrics.Suppressed.Inc()
		return
	}
	if err := d.client.SetActivity(toDiscordActivity(p)); err != nil {
		slog.Warn("failed to set activity", "error", err)
		return
	}
	d.ls.lastHash = hash
	d.metrics.RecordPublish(editorID, now)
	logger.Trace(slog.Default(), "presence updated",
		"editor", editorID,
		"details", p.Details,
		"state", p.State,
	)
}

// clearPresence clears Discord presence once per cleared period. The next
// payload starts a fresh timestamp.
func (d *daemon) clearPresence(reason string) {
	if d.ls.cleared {
		return
	}
	slog.Debug("clearing presence", "reason", reason)
	if err := d.client.ClearActivity(); err != nil {
		slog.Warn("failed to clear activity", "error", err)
	}
	d.ls.cleared = true
	d.ls.lastHash = ""
	d.ls.lastPayload = nil
	d.metrics.Cleared.WithLabelValues(reason).Inc()
}

// isIdle reports whether an unfocused editor has been inactive for longer
// than timeoutSeconds. A zero timeout disables idle detection.
func isIdle(s *editor.State, timeoutSeconds int, now time.Time) bool {
	if timeoutSeconds <= 0 || s.Focused {
		return false
	}
	return now.Sub(time.Unix(s.LastActivity, 0)) > time.Duration(timeoutSeconds)*time.Second
}

// watchedPaths returns the paths matched against privacy ignore patterns:
// every workspace folder and the active document.
func watchedPaths(s *editor.State) []string {
	var ps []string
	for _, f := range s.Workspace.Folders {
		ps = append(ps, f.Path)
	}
	if s.Document != nil {
		ps = append(ps, s.Document.FileName)
	}
	return ps
}
