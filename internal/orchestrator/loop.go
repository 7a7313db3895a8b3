// Package orchestrator ties the persistence, graph, base-branch,
// worktree, merge, signal, and session packages together into the
// scheduling loop (C9): pick ready stages, respect max-parallel, react
// to completion and failure events, and repeat until the plan is done.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/cosmix/loom-sub004/internal/backend"
	"github.com/cosmix/loom-sub004/internal/basebranch"
	"github.com/cosmix/loom-sub004/internal/config"
	"github.com/cosmix/loom-sub004/internal/daemon"
	"github.com/cosmix/loom-sub004/internal/graph"
	"github.com/cosmix/loom-sub004/internal/handoff"
	"github.com/cosmix/loom-sub004/internal/merge"
	"github.com/cosmix/loom-sub004/internal/session"
	"github.com/cosmix/loom-sub004/internal/signal"
	"github.com/cosmix/loom-sub004/internal/stage"
	"github.com/cosmix/loom-sub004/internal/vcs"
	"github.com/cosmix/loom-sub004/internal/verify"
	"github.com/cosmix/loom-sub004/internal/worktree"
)

// DefaultPollInterval is how long the loop sleeps between polls absent
// an override.
const DefaultPollInterval = 5 * time.Second

// Options configures one run of the loop.
type Options struct {
	MaxParallel int
	Manual      bool
	Watch       bool
	AutoMerge   bool
	PollInterval time.Duration
	BackendID   string
	BackendCfg  backend.Config

	// OnlyStage, if set, restricts the loop to that stage and everything
	// it transitively depends on, leaving every other stage untouched.
	OnlyStage string
}

// Loop drives one orchestration run against a repository's .work state.
type Loop struct {
	cfg        *config.Config
	repo       *vcs.Repo
	stages     *stage.Store
	sessions   *session.Store
	signals    *signal.Store
	handoffs   *handoff.Store
	worktrees  *worktree.Manager
	resolver   *basebranch.Resolver
	merger     *merge.Merger
	backends   *backend.Registry
	breaker    *session.RetryBreaker
	heartbeats *session.HeartbeatTracker
	log        *zap.Logger

	opts Options
	sem  *semaphore.Weighted

	running map[string]backend.Handle
}

// New wires a Loop from cfg, ready to Run. The returned Loop owns a
// HeartbeatTracker watching cfg.HookEventsPath(); callers should arrange
// for it to be closed (Loop.Close) once the run finishes.
func New(cfg *config.Config, backends *backend.Registry, log *zap.Logger, opts Options) (*Loop, error) {
	repo := vcs.New(cfg.RepoRoot)
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	heartbeats, err := session.NewHeartbeatTracker(cfg.HookEventsPath())
	if err != nil {
		return nil, fmt.Errorf("orchestrator: start heartbeat tracker: %w", err)
	}
	return &Loop{
		cfg:        cfg,
		repo:       repo,
		stages:     stage.NewStore(cfg.StagesDir()),
		sessions:   session.NewStore(cfg.SessionsDir()),
		signals:    signal.NewStore(cfg.SignalsDir()),
		handoffs:   handoff.NewStore(cfg.HandoffsDir()),
		worktrees:  worktree.New(repo, cfg.WorktreesDir()),
		resolver:   basebranch.New(repo, cfg.BaseBranch()),
		merger:     merge.New(repo, cfg.RepoRoot, cfg.BaseBranch(), cfg.MergeLockPath(), cfg.MergeLockTimeout(), signal.NewStore(cfg.SignalsDir())),
		backends:   backends,
		breaker:    session.NewRetryBreaker(),
		heartbeats: heartbeats,
		log:        log,
		opts:       opts,
		sem:        semaphore.NewWeighted(int64(opts.MaxParallel)),
		running:    map[string]backend.Handle{},
	}, nil
}

// Close releases resources held by the Loop (the heartbeat tracker's
// filesystem watcher).
func (l *Loop) Close() error {
	if l.heartbeats == nil {
		return nil
	}
	return l.heartbeats.Close()
}

// Snapshot reports the orchestrator's current state for the daemon's
// status-subscriber broadcast. It reads persisted state fresh each call
// and never mutates it.
func (l *Loop) Snapshot() daemon.Snapshot {
	snap := daemon.Snapshot{}

	stages, err := l.stages.LoadAll()
	if err == nil {
		sort.Slice(stages, func(i, j int) bool { return stages[i].ID < stages[j].ID })
		for _, s := range stages {
			snap.Stages = append(snap.Stages, daemon.StageSummary{ID: s.ID, Status: string(s.Status), Merged: s.Merged})
		}
	}

	sessions, err := l.sessions.LoadAll()
	if err == nil {
		sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
		for _, sess := range sessions {
			snap.Sessions = append(snap.Sessions, daemon.SessionSummary{ID: sess.ID, StageID: sess.StageID, State: string(sess.State), PID: sess.PID})
		}
	}

	if pid, _, err := merge.Holder(l.cfg.MergeLockPath()); err == nil && pid > 0 {
		snap.Merge.LockHeld = session.IsAlive(pid)
	}

	return snap
}

// Run executes the loop until the plan completes (or, in watch mode,
// until ctx is cancelled).
func (l *Loop) Run(ctx context.Context) error {
	if err := os.WriteFile(l.cfg.PIDPath(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		l.log.Warn("write pid file failed", zap.Error(err))
	}
	defer os.Remove(l.cfg.PIDPath())

	for {
		if l.stopRequested() {
			return nil
		}
		done, err := l.poll(ctx)
		if err != nil {
			return err
		}
		if done && !l.opts.Watch {
			_ = os.WriteFile(l.cfg.CompletePath(), []byte("complete\n"), 0o644)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.opts.PollInterval):
		}
	}
}

// stopRequested checks for and consumes the completion marker written by
// `loom stop`, so a watch-mode loop exits promptly instead of waiting out
// its poll interval.
func (l *Loop) stopRequested() bool {
	if _, err := os.Stat(l.cfg.CompletePath()); err == nil {
		os.Remove(l.cfg.CompletePath())
		return true
	}
	return false
}

// poll runs one iteration: refresh the graph, start newly-ready stages
// up to max_parallel, observe running sessions, and apply their events.
// It returns done=true once the graph reports completion.
func (l *Loop) poll(ctx context.Context) (bool, error) {
	stages, err := l.stages.LoadAll()
	if err != nil {
		return false, fmt.Errorf("orchestrator: load stages: %w", err)
	}
	stages = l.scopeToOnlyStage(stages)

	g, err := graph.Build(stages)
	if err != nil {
		return false, fmt.Errorf("orchestrator: build graph: %w", err)
	}

	byID := make(map[string]*stage.Stage, len(stages))
	for i := range stages {
		byID[stages[i].ID] = &stages[i]
	}

	if err := l.startReady(ctx, g, byID); err != nil {
		return false, err
	}

	if err := l.observe(ctx, byID); err != nil {
		return false, err
	}

	return g.IsComplete(), nil
}

// scopeToOnlyStage restricts stages to l.opts.OnlyStage and its
// transitive dependency closure, when set.
func (l *Loop) scopeToOnlyStage(stages []stage.Stage) []stage.Stage {
	if l.opts.OnlyStage == "" {
		return stages
	}
	byID := make(map[string]stage.Stage, len(stages))
	for _, s := range stages {
		byID[s.ID] = s
	}
	keep := map[string]bool{}
	var visit func(id string)
	visit = func(id string) {
		if keep[id] {
			return
		}
		s, ok := byID[id]
		if !ok {
			return
		}
		keep[id] = true
		for _, d := range s.Dependencies {
			visit(d)
		}
	}
	visit(l.opts.OnlyStage)

	out := make([]stage.Stage, 0, len(keep))
	for _, s := range stages {
		if keep[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// startReady consumes ready nodes in (depth ASC, id ASC) order,
// respecting parallel-group all-or-nothing reservation and the
// max-parallel semaphore.
func (l *Loop) startReady(ctx context.Context, g *graph.Graph, byID map[string]*stage.Stage) error {
	groups, ungrouped := g.ReadyGroups()

	type batch struct {
		key   string
		nodes []*graph.Node
	}
	var batches []batch
	for k, nodes := range groups {
		batches = append(batches, batch{key: k, nodes: nodes})
	}
	for _, n := range ungrouped {
		batches = append(batches, batch{key: n.ID, nodes: []*graph.Node{n}})
	}
	sort.Slice(batches, func(i, j int) bool {
		di, dj := batches[i].nodes[0].Depth, batches[j].nodes[0].Depth
		if di != dj {
			return di < dj
		}
		return batches[i].key < batches[j].key
	})

	for _, b := range batches {
		need := int64(len(b.nodes))
		if !l.sem.TryAcquire(need) {
			continue
		}
		started := 0
		for _, n := range b.nodes {
			s := byID[n.ID]
			if s == nil {
				continue
			}
			if err := l.startStage(ctx, s, byID); err != nil {
				l.log.Warn("failed to start stage", zap.String("stage_id", s.ID), zap.Error(err))
				continue
			}
			started++
		}
		l.sem.Release(need - int64(started))
	}
	return nil
}

func (l *Loop) startStage(ctx context.Context, s *stage.Stage, byID map[string]*stage.Stage) error {
	if active := l.activeSessionFor(s.ID); active != "" {
		return fmt.Errorf("start stage %s: session %s is already active for this stage", s.ID, active)
	}

	sessID := session.NewID(uuid.NewString()[:8], time.Now())

	depBranches := make([]string, 0, len(s.Dependencies))
	for _, d := range s.Dependencies {
		depBranches = append(depBranches, "loom/"+d)
	}

	resolved, err := l.resolver.Resolve(ctx, s.ID, depBranches)
	if err != nil {
		var conflict *basebranch.ConflictError
		if errors.As(err, &conflict) {
			_, _ = l.signals.Write(signal.Meta{
				Kind:          signal.KindBaseConflict,
				SessionID:     sessID,
				StageID:       s.ID,
				ConflictFiles: []string{conflict.ConflictingDep},
			})
		}
		return fmt.Errorf("resolve base for %s: %w", s.ID, err)
	}
	s.ResolvedBase = resolved.String()
	s.BaseBranch = resolved.Branch

	wt, err := l.worktrees.Create(ctx, s.ID, resolved.Branch)
	if err != nil {
		return fmt.Errorf("create worktree for %s: %w", s.ID, err)
	}
	s.WorktreeID = s.ID
	s.SessionID = sessID

	deps := make([]signal.DependencyStatus, 0, len(s.Dependencies))
	for _, d := range s.Dependencies {
		dep := byID[d]
		merged := dep != nil && dep.Merged
		deps = append(deps, signal.DependencyStatus{StageID: d, Merged: merged})
	}
	sigMeta := signal.Meta{
		Kind:         signal.KindStage,
		SessionID:    sessID,
		StageID:      s.ID,
		Branch:       wt.Branch,
		Acceptance:   s.Acceptance,
		Dependencies: deps,
	}
	sigPath, err := l.signals.Write(sigMeta)
	if err != nil {
		return fmt.Errorf("emit signal for %s: %w", s.ID, err)
	}

	if err := stage.TryTransition(s, stage.Executing, time.Now()); err != nil {
		return err
	}
	if err := l.stages.Save(*s, stageDepth(s, byID)); err != nil {
		return err
	}

	sess := session.Session{
		ID:              sessID,
		StageID:         s.ID,
		WorktreeID:      s.ID,
		BackendID:       l.opts.BackendID,
		State:           session.Spawning,
		StartedAt:       time.Now(),
		LastHeartbeatAt: time.Now(),
	}

	if l.opts.Manual {
		sess.State = session.Paused
		return l.sessions.Save(sess)
	}

	b, err := l.backends.Resolve(l.opts.BackendID, l.opts.BackendCfg)
	if err != nil {
		return fmt.Errorf("resolve backend: %w", err)
	}
	handle, err := b.Spawn(ctx, backend.SpawnRequest{
		SessionID:    sessID,
		StageID:      s.ID,
		WorktreeID:   s.ID,
		WorktreePath: wt.Path,
		SignalPath:   sigPath,
		LogPath:      l.cfg.LogsDir() + "/" + sessID + ".log",
		Env: map[string]string{
			"LOOM_STAGE_ID":   s.ID,
			"LOOM_SESSION_ID": sessID,
			"LOOM_WORK_DIR":   l.cfg.WorkPath,
		},
	})
	if err != nil {
		return fmt.Errorf("spawn session for %s: %w", s.ID, err)
	}
	sess.PID = handle.PID()
	sess.State = session.Running
	l.running[sessID] = handle
	return l.sessions.Save(sess)
}

// activeSessionFor enforces invariant 4: at most one session may occupy
// stage S with an active status (Spawning, Running, Paused,
// ContextExhausted) at a time. It returns the id of the offending active
// session, or "" if none exists.
func (l *Loop) activeSessionFor(stageID string) string {
	sessions, err := l.sessions.LoadAll()
	if err != nil {
		return ""
	}
	for _, sess := range sessions {
		if sess.StageID == stageID && sess.EndedAt == nil && sess.State.Active() {
			return sess.ID
		}
	}
	return ""
}

func stageDepth(s *stage.Stage, byID map[string]*stage.Stage) int {
	seen := map[string]bool{}
	var depth func(id string) int
	depth = func(id string) int {
		st := byID[id]
		if st == nil || len(st.Dependencies) == 0 || seen[id] {
			return 0
		}
		seen[id] = true
		max := 0
		for _, d := range st.Dependencies {
			if v := depth(d) + 1; v > max {
				max = v
			}
		}
		return max
	}
	return depth(s.ID)
}

// observe checks every in-flight session for liveness/heartbeat/context
// events and applies the resulting state transitions, covering the full
// failure taxonomy of spec.md §4.8: crash, hang, context exhaustion,
// verification failure, merge conflict/error, and waiting-for-input.
// Stages that complete and verify successfully run the progressive merge.
func (l *Loop) observe(ctx context.Context, byID map[string]*stage.Stage) error {
	for sessID, handle := range l.running {
		sess, err := l.sessions.Load(sessID)
		if err != nil {
			continue
		}
		s := byID[sess.StageID]
		if s == nil {
			continue
		}

		if session.IsAlive(handle.PID()) {
			if l.observeLiveSession(s, &sess, handle, byID) {
				delete(l.running, sessID)
				l.sem.Release(1)
			}
			continue
		}

		delete(l.running, sessID)
		l.sem.Release(1)
		waitErr := handle.Wait()
		if waitErr != nil {
			l.handleCrash(s, &sess, waitErr)
		} else {
			l.handleCleanExit(ctx, s, &sess)
		}

		ended := time.Now()
		sess.EndedAt = &ended
		if err := l.sessions.Save(sess); err != nil {
			return err
		}
		if err := l.stages.Save(*s, stageDepth(s, byID)); err != nil {
			return err
		}
	}
	return nil
}

// observeLiveSession checks a still-running session for heartbeat
// staleness, imminent context exhaustion, or a waiting-for-input signal.
// It returns true if it took a terminal action on the session (in which
// case the caller must stop tracking handle).
func (l *Loop) observeLiveSession(s *stage.Stage, sess *session.Session, handle backend.Handle, byID map[string]*stage.Stage) bool {
	ev, hasEvent := l.heartbeatEvent(sess.ID)
	if hasEvent {
		sess.ContextPercent = ev.ContextPercent
		if ev.WaitingForInput && s.Status == stage.Executing {
			l.handleWaitingForInput(s, sess)
			_ = l.sessions.Save(*sess)
			_ = l.stages.Save(*s, stageDepth(s, byID))
			return false
		}
	}

	if l.heartbeats != nil && l.heartbeats.Stale(sess.ID, sess.StartedAt, l.cfg.HeartbeatStaleAfter()) {
		l.handleHung(s, sess, handle)
		ended := time.Now()
		sess.EndedAt = &ended
		_ = l.sessions.Save(*sess)
		_ = l.stages.Save(*s, stageDepth(s, byID))
		return true
	}

	if sess.ContextPercent >= l.cfg.Project.Session.CriticalThreshold {
		l.handleContextExhaustion(s, sess, handle)
		ended := time.Now()
		sess.EndedAt = &ended
		_ = l.sessions.Save(*sess)
		_ = l.stages.Save(*s, stageDepth(s, byID))
		return true
	}

	_ = l.sessions.Save(*sess)
	return false
}

func (l *Loop) heartbeatEvent(sessionID string) (session.HeartbeatEvent, bool) {
	if l.heartbeats == nil {
		return session.HeartbeatEvent{}, false
	}
	return l.heartbeats.LastEvent(sessionID)
}

// handleWaitingForInput holds the stage open for a human, per spec.md
// §4.8's "agent asks for input" row. The session itself is left running
// (blocked on stdin), not killed.
func (l *Loop) handleWaitingForInput(s *stage.Stage, sess *session.Session) {
	if err := stage.TryTransition(s, stage.WaitingForInput, time.Now()); err != nil {
		return
	}
	sess.State = session.Paused
}

// handleHung kills a session whose heartbeat has gone stale and blocks
// the stage with a Timeout failure, then decides whether to requeue for
// an automatic retry or escalate to a human.
func (l *Loop) handleHung(s *stage.Stage, sess *session.Session, handle backend.Handle) {
	_ = handle.Kill()
	sess.State = session.Crashed
	_ = stage.TryTransition(s, stage.Blocked, time.Now())
	s.LastFailure = &stage.FailureInfo{Kind: stage.FailureTimeout, Message: "heartbeat stale", At: time.Now()}

	l.emitRecoverySignal(s, sess, signal.ReasonHung, "")
	l.applyRecoveryDecision(s, session.Crashed)
}

// handleCrash classifies a process that exited with a non-nil Wait
// error as a crash, writes a crash report, and decides whether to
// requeue for an automatic retry or escalate to a human.
func (l *Loop) handleCrash(s *stage.Stage, sess *session.Session, waitErr error) {
	sess.State = session.Crashed
	_ = stage.TryTransition(s, stage.Blocked, time.Now())
	s.LastFailure = &stage.FailureInfo{Kind: stage.FailureCrash, Message: waitErr.Error(), At: time.Now()}

	reportPath, err := l.writeCrashReport(s, sess, waitErr)
	if err != nil {
		l.log.Warn("write crash report failed", zap.String("stage_id", s.ID), zap.Error(err))
	}
	l.emitRecoverySignal(s, sess, signal.ReasonCrash, reportPath)
	l.applyRecoveryDecision(s, session.Crashed)
}

// handleContextExhaustion terminates a session nearing its context
// limit, writes a handoff for its replacement, and requeues the stage
// so the next poll spawns a fresh session.
func (l *Loop) handleContextExhaustion(s *stage.Stage, sess *session.Session, handle backend.Handle) {
	_ = handle.Kill()
	sess.State = session.ContextExhausted
	s.LastFailure = &stage.FailureInfo{Kind: stage.FailureContextExhausted, Message: "context usage reached critical threshold", At: time.Now()}

	handoffPath, err := l.handoffs.Write(handoff.Meta{
		StageID:        s.ID,
		SessionID:      sess.ID,
		ContextPercent: sess.ContextPercent,
		Goals:          fmt.Sprintf("Continue stage %s from where session %s left off.", s.ID, sess.ID),
	})
	if err != nil {
		l.log.Warn("write handoff failed", zap.String("stage_id", s.ID), zap.Error(err))
	}

	if err := stage.TryTransition(s, stage.NeedsHandoff, time.Now()); err != nil {
		l.log.Warn("transition to needs-handoff failed", zap.String("stage_id", s.ID), zap.Error(err))
		return
	}

	_, _ = l.signals.Write(signal.Meta{
		Kind:              signal.KindRecovery,
		SessionID:         sess.ID,
		StageID:           s.ID,
		Reason:            signal.ReasonContextExhaustion,
		PreviousSessionID: sess.ID,
		LastHeartbeat:     signal.LastHeartbeatInfo{At: sess.LastHeartbeatAt},
		LatestHandoffPath: handoffPath,
		RecoveryAttempt:   sess.RecoveryAttempt + 1,
		SuggestedActions:  signal.DefaultActions(signal.ReasonContextExhaustion),
	})

	// A handoff always yields a fresh session; the breaker doesn't gate
	// this path since exhausting context isn't a failure in itself.
	_ = stage.TryTransition(s, stage.Queued, time.Now())
}

// handleCleanExit runs acceptance verification before deciding between
// Completed and CompletedWithFailures (spec.md §4.8's verification row),
// then runs the progressive merge for a verified stage.
func (l *Loop) handleCleanExit(ctx context.Context, s *stage.Stage, sess *session.Session) {
	report := l.verifyStage(ctx, s)
	if !report.Passed() {
		sess.State = session.Crashed
		if err := stage.TryTransition(s, stage.CompletedWithFailures, time.Now()); err != nil {
			l.log.Warn("transition to completed-with-failures failed", zap.String("stage_id", s.ID), zap.Error(err))
			return
		}
		s.LastFailure = &stage.FailureInfo{Kind: stage.FailureVerification, Message: report.Summary(), At: time.Now()}
		l.applyRecoveryDecision(s, session.Crashed)
		return
	}

	sess.State = session.Completed
	if l.opts.AutoMerge {
		if _, err := l.merger.Run(ctx, s); err != nil {
			l.log.Warn("progressive merge failed", zap.String("stage_id", s.ID), zap.Error(err))
		}
		return
	}
	if err := stage.TryTransition(s, stage.Completed, time.Now()); err != nil {
		l.log.Warn("transition to completed failed", zap.String("stage_id", s.ID), zap.Error(err))
	}
}

func (l *Loop) verifyStage(ctx context.Context, s *stage.Stage) verify.Report {
	if len(s.Acceptance) == 0 {
		return verify.Report{}
	}
	dir := filepath.Join(l.cfg.WorktreesDir(), s.ID)
	if _, err := os.Stat(dir); err != nil {
		dir = l.cfg.RepoRoot
	}
	return verify.Run(ctx, dir, s.Acceptance, l.cfg.VerifyCommandTimeout(), nil, nil)
}

// applyRecoveryDecision consults the retry breaker and the stage's retry
// budget to either requeue the stage for an automatic retry (bounded) or
// escalate it to a human.
func (l *Loop) applyRecoveryDecision(s *stage.Stage, terminalState session.State) {
	action := session.NextAction(terminalState, s.RetryCount, s.MaxRetries)
	allowed := l.breaker.Allow(s.ID)
	l.breaker.RecordOutcome(s.ID, false)

	if action == session.ActionEscalateHuman || !allowed || stage.RetryExhausted(*s) {
		if err := stage.TryTransition(s, stage.NeedsHumanReview, time.Now()); err != nil {
			l.log.Warn("escalate to human review failed", zap.String("stage_id", s.ID), zap.Error(err))
		}
		return
	}

	if err := stage.TryTransition(s, stage.Queued, time.Now()); err != nil {
		l.log.Warn("requeue after recovery failed", zap.String("stage_id", s.ID), zap.Error(err))
	}
}

func (l *Loop) emitRecoverySignal(s *stage.Stage, sess *session.Session, reason signal.RecoveryReason, crashReportPath string) {
	_, _ = l.signals.Write(signal.Meta{
		Kind:              signal.KindRecovery,
		SessionID:         sess.ID,
		StageID:           s.ID,
		Reason:            reason,
		PreviousSessionID: sess.ID,
		LastHeartbeat:     signal.LastHeartbeatInfo{At: sess.LastHeartbeatAt},
		CrashReportPath:   crashReportPath,
		RecoveryAttempt:   sess.RecoveryAttempt + 1,
		SuggestedActions:  signal.DefaultActions(reason),
	})
}

// writeCrashReport persists a minimal crash report under cfg.CrashesDir()
// and returns its path.
func (l *Loop) writeCrashReport(s *stage.Stage, sess *session.Session, waitErr error) (string, error) {
	dir := l.cfg.CrashesDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("orchestrator: ensure crash dir: %w", err)
	}
	path := filepath.Join(dir, sess.ID+".md")
	body := fmt.Sprintf("# Crash report for %s\n\nStage: %s\nPID: %d\nError: %s\n", sess.ID, s.ID, sess.PID, waitErr.Error())
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("orchestrator: write crash report: %w", err)
	}
	return path, nil
}
