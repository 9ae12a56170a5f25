/*
Copyright 2026 The kube-borg-backup authors.

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package hooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/backube/kube-borg-backup/internal/config"
)

// Session pairs one pre-hook with the post-hook sharing its sessionId, per
// §4.2's "one long-running exec session in the target container" protocol.
type Session struct {
	ID   string
	Pre  config.Hook
	Post config.Hook
}

// PairSessions matches pre/post hooks by sessionId. Hooks with an empty
// SessionID are ordinary hooks and are returned unchanged in remaining{Pre,
// Post}; every session id present on exactly one side is an error, since the
// protocol requires both halves to share the container.
func PairSessions(pre, post []config.Hook) (sessions []Session, remainingPre, remainingPost []config.Hook, err error) {
	postBySession := make(map[string]config.Hook)
	for _, h := range post {
		if h.SessionID != "" {
			postBySession[h.SessionID] = h
		} else {
			remainingPost = append(remainingPost, h)
		}
	}

	seen := make(map[string]bool)
	for _, h := range pre {
		if h.SessionID == "" {
			remainingPre = append(remainingPre, h)
			continue
		}
		p, ok := postBySession[h.SessionID]
		if !ok {
			return nil, nil, nil, fmt.Errorf("sessionId %q has a pre-hook but no matching post-hook", h.SessionID)
		}
		sessions = append(sessions, Session{ID: h.SessionID, Pre: h, Post: p})
		seen[h.SessionID] = true
	}
	for id := range postBySession {
		if !seen[id] {
			return nil, nil, nil, fmt.Errorf("sessionId %q has a post-hook but no matching pre-hook", id)
		}
	}
	return sessions, remainingPre, remainingPost, nil
}

const sessionPollInterval = time.Second

// sessionRun tracks one in-flight linked session's background exec.
type sessionRun struct {
	session Session
	pod     string
	container string
	done    chan HookOutcome
}

// SessionRunner drives the orchestrator sequence described in §4.2:
// start all linked sessions → poll every pre-done → (caller does main work) →
// signal every session → poll every post-started (bounded) → wait for every
// background exec to finish.
type SessionRunner struct {
	engine *Engine
	runs   []*sessionRun
}

// StartSessions launches one background exec per session, running the
// combined pre-body/checkpoint/post-body script inside the target container.
func (e *Engine) StartSessions(ctx context.Context, sessions []Session) *SessionRunner {
	r := &SessionRunner{engine: e}
	for _, s := range sessions {
		run := &sessionRun{session: s, pod: s.Pre.Pod, container: s.Pre.Container, done: make(chan HookOutcome, 1)}
		r.runs = append(r.runs, run)
		script := buildSessionScript(s)
		go func(run *sessionRun, script string) {
			stdout, stderr, err := e.execInPod(ctx, run.pod, run.container, []string{"/bin/sh", "-c", script})
			run.done <- HookOutcome{Hook: run.session.Pre, Stdout: stdout, Stderr: stderr, Err: err}
		}(run, script)
	}
	return r
}

// AwaitPreDone polls, once per session, until every session's pre-done
// checkpoint exists. This wait is intentionally unbounded except by ctx
// cancellation — see §5 "Unbounded poll on pre-done".
func (r *SessionRunner) AwaitPreDone(ctx context.Context) error {
	for _, run := range r.runs {
		if err := r.pollCheckpoint(ctx, run, checkpointFile(run.session.ID, "pre-done"), 0); err != nil {
			return fmt.Errorf("session %q: waiting for pre-done: %w", run.session.ID, err)
		}
	}
	return nil
}

// Signal writes the signal-{id} checkpoint for every session, unblocking
// each inner script's wait loop.
func (r *SessionRunner) Signal(ctx context.Context) error {
	for _, run := range r.runs {
		file := checkpointFile(run.session.ID, "signal")
		if _, _, err := r.engine.execInPod(ctx, run.pod, run.container, []string{"touch", file}); err != nil {
			return fmt.Errorf("session %q: writing signal checkpoint: %w", run.session.ID, err)
		}
	}
	return nil
}

// AwaitPostStarted bounds the wait for the post-started checkpoint: its
// absence after timeout means the session died between signal and
// post-body, per §4.2.
func (r *SessionRunner) AwaitPostStarted(ctx context.Context, timeout time.Duration) error {
	for _, run := range r.runs {
		if err := r.pollCheckpoint(ctx, run, checkpointFile(run.session.ID, "post-started"), timeout); err != nil {
			return fmt.Errorf("session %q died before post-started: %w", run.session.ID, err)
		}
	}
	return nil
}

// Wait blocks for every background session script to exit (post-done and
// self-cleanup happen inside the inner script before it returns).
func (r *SessionRunner) Wait() []HookOutcome {
	outcomes := make([]HookOutcome, len(r.runs))
	for i, run := range r.runs {
		outcomes[i] = <-run.done
	}
	return outcomes
}

func (r *SessionRunner) pollCheckpoint(ctx context.Context, run *sessionRun, file string, timeout time.Duration) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	ticker := time.NewTicker(sessionPollInterval)
	defer ticker.Stop()

	for {
		_, _, err := r.engine.execInPod(ctx, run.pod, run.container, []string{"test", "-f", file})
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("timed out waiting for checkpoint %s", file)
		case <-ticker.C:
		}
	}
}

func checkpointFile(sessionID, phase string) string {
	return fmt.Sprintf("/tmp/kbb-%s-%s", phase, sessionID)
}

func buildSessionScript(s Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "set -e\n%s\ntouch %s\n", bodyOf(s.Pre), checkpointFile(s.ID, "pre-done"))
	fmt.Fprintf(&b, "while [ ! -f %s ]; do sleep 1; done\n", checkpointFile(s.ID, "signal"))
	fmt.Fprintf(&b, "touch %s\n%s\ntouch %s\n", checkpointFile(s.ID, "post-started"), bodyOf(s.Post), checkpointFile(s.ID, "post-done"))
	fmt.Fprintf(&b, "rm -f %s %s %s %s\n",
		checkpointFile(s.ID, "pre-done"), checkpointFile(s.ID, "signal"),
		checkpointFile(s.ID, "post-started"), checkpointFile(s.ID, "post-done"))
	return b.String()
}

func bodyOf(h config.Hook) string {
	if h.Kind == config.HookKindShell {
		return h.Script
	}
	return strings.Join(h.Command, " ")
}
