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
	"testing"

	"github.com/go-logr/logr"

	"github.com/backube/kube-borg-backup/internal/config"
)

// fakeScaler records the call it received and returns a fixed post-patch
// replica count, standing in for ClientsetScaler's /scale subresource round
// trip.
type fakeScaler struct {
	gotKind, gotName string
	gotReplicas      int32
	postPatch        int32
	err              error
}

func (f *fakeScaler) SetReplicas(_ context.Context, _, kind, name string, replicas int32) (int32, error) {
	f.gotKind, f.gotName, f.gotReplicas = kind, name, replicas
	if f.err != nil {
		return 0, f.err
	}
	return f.postPatch, nil
}

func TestGroupBatchesGroupsAdjacentParallelHooks(t *testing.T) {
	h := func(parallel bool) config.Hook { return config.Hook{Parallel: parallel} }
	hooks := []config.Hook{h(false), h(true), h(true), h(false), h(true)}

	batches := groupBatches(hooks)
	if len(batches) != 4 {
		t.Fatalf("expected 4 batches, got %d: %v", len(batches), batches)
	}
	if len(batches[0]) != 1 || len(batches[1]) != 2 || len(batches[2]) != 1 || len(batches[3]) != 1 {
		t.Fatalf("unexpected batch shapes: %v", batches)
	}
}

func TestGroupBatchesAllSequential(t *testing.T) {
	hooks := []config.Hook{{}, {}, {}}
	batches := groupBatches(hooks)
	if len(batches) != 3 {
		t.Fatalf("expected 3 singleton batches, got %d", len(batches))
	}
}

func TestPairSessionsMatchesBySessionID(t *testing.T) {
	pre := []config.Hook{
		{SessionID: "db", Kind: config.HookKindShell, Script: "start-backup"},
		{Kind: config.HookKindExec, Command: []string{"true"}},
	}
	post := []config.Hook{
		{SessionID: "db", Kind: config.HookKindShell, Script: "stop-backup"},
		{Kind: config.HookKindExec, Command: []string{"true"}},
	}

	sessions, remPre, remPost, err := PairSessions(pre, post)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "db" {
		t.Fatalf("expected one session 'db', got %v", sessions)
	}
	if len(remPre) != 1 || len(remPost) != 1 {
		t.Fatalf("expected one leftover hook on each side, got pre=%v post=%v", remPre, remPost)
	}
}

func TestPairSessionsErrorsOnUnmatchedPre(t *testing.T) {
	pre := []config.Hook{{SessionID: "orphan"}}
	_, _, _, err := PairSessions(pre, nil)
	if err == nil {
		t.Fatal("expected error for pre-hook with no matching post-hook")
	}
}

func TestPairSessionsErrorsOnUnmatchedPost(t *testing.T) {
	post := []config.Hook{{SessionID: "orphan"}}
	_, _, _, err := PairSessions(nil, post)
	if err == nil {
		t.Fatal("expected error for post-hook with no matching pre-hook")
	}
}

func TestBuildSessionScriptOrdersCheckpoints(t *testing.T) {
	s := Session{
		ID:   "db",
		Pre:  config.Hook{Kind: config.HookKindShell, Script: "echo pre"},
		Post: config.Hook{Kind: config.HookKindShell, Script: "echo post"},
	}
	script := buildSessionScript(s)

	wantInOrder := []string{
		"echo pre",
		"touch /tmp/kbb-pre-done-db",
		"/tmp/kbb-signal-db",
		"touch /tmp/kbb-post-started-db",
		"echo post",
		"touch /tmp/kbb-post-done-db",
	}
	last := -1
	for _, want := range wantInOrder {
		idx := indexOf(script, want)
		if idx < 0 {
			t.Fatalf("script missing %q:\n%s", want, script)
		}
		if idx < last {
			t.Fatalf("expected %q to appear after previous checkpoint:\n%s", want, script)
		}
		last = idx
	}
}

func TestRunOneScaleReturnsPostPatchReplicas(t *testing.T) {
	scaler := &fakeScaler{postPatch: 3}
	e := &Engine{Namespace: "ns", Scaler: scaler, Log: logr.Discard()}
	replicas := int32(3)
	h := config.Hook{Kind: config.HookKindScale, WorkloadKind: "Deployment", WorkloadName: "web", Replicas: &replicas}

	outcome := e.runOne(context.Background(), h)

	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if outcome.Replicas != 3 {
		t.Fatalf("expected outcome.Replicas=3, got %d", outcome.Replicas)
	}
	if scaler.gotKind != "Deployment" || scaler.gotName != "web" || scaler.gotReplicas != 3 {
		t.Fatalf("scaler called with unexpected args: %+v", scaler)
	}
}

func TestRunOneScaleMissingReplicasErrors(t *testing.T) {
	scaler := &fakeScaler{}
	e := &Engine{Namespace: "ns", Scaler: scaler, Log: logr.Discard()}
	h := config.Hook{Kind: config.HookKindScale, WorkloadKind: "Deployment", WorkloadName: "web"}

	outcome := e.runOne(context.Background(), h)

	if outcome.Err == nil {
		t.Fatal("expected error for scale hook missing replicas")
	}
}

func TestRunOneScalePropagatesScalerError(t *testing.T) {
	scaler := &fakeScaler{err: fmt.Errorf("boom")}
	e := &Engine{Namespace: "ns", Scaler: scaler, Log: logr.Discard()}
	replicas := int32(1)
	h := config.Hook{Kind: config.HookKindScale, WorkloadKind: "StatefulSet", WorkloadName: "db", Replicas: &replicas}

	outcome := e.runOne(context.Background(), h)

	if outcome.Err == nil {
		t.Fatal("expected scaler error to propagate")
	}
	if outcome.Replicas != 0 {
		t.Fatalf("expected zero replicas on error, got %d", outcome.Replicas)
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
