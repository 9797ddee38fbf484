// Package workflow tracks phase completion for a workspace and enforces the
// product → specify → plan → tasks ordering.
package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/kokistudios/specgate/internal/feature"
	"github.com/kokistudios/specgate/internal/marker"
	"github.com/kokistudios/specgate/internal/phase"
	"github.com/kokistudios/specgate/internal/store"
)

// Manager owns the persisted workflow state of one workspace. Every call
// reloads state from the backend; nothing is cached between calls.
type Manager struct {
	backend store.Backend
	probe   feature.Probe
	logger  *log.Logger
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for mutation and degradation messages.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithProbe sets the source of the feature label recorded in new state.
func WithProbe(p feature.Probe) Option {
	return func(m *Manager) { m.probe = p }
}

// WithClock overrides the time source for LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager persisting through backend.
func NewManager(backend store.Backend, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		probe:   feature.Static(""),
		logger:  log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel, Prefix: "workflow"}),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) location() string {
	return m.backend.StateLocation()
}

func (m *Manager) initialState() *State {
	return &State{
		CompletedPhases: []string{},
		FeatureName:     m.probe.FeatureName(),
		LastUpdated:     m.now(),
		PhaseData:       map[string]interface{}{},
	}
}

// load reads the persisted state, or a fresh initial state if none exists.
// Missing keys are backfilled; undecodable bytes are a StateValidationError.
func (m *Manager) load() (*State, error) {
	data, err := m.backend.ReadState()
	if errors.Is(err, store.ErrNoState) {
		return m.initialState(), nil
	}
	if err != nil {
		return nil, &StateValidationError{Op: "read", Path: m.location(), Err: err}
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, &StateValidationError{Op: "decode", Path: m.location(), Err: err}
	}
	if st.CompletedPhases == nil {
		st.CompletedPhases = []string{}
	}
	if st.PhaseData == nil {
		st.PhaseData = map[string]interface{}{}
	}
	return &st, nil
}

func (m *Manager) save(st *State) error {
	st.LastUpdated = m.now()
	data, err := yaml.Marshal(st)
	if err != nil {
		return &StateValidationError{Op: "encode", Path: m.location(), Err: err}
	}
	if err := m.backend.WriteState(data); err != nil {
		return &StateValidationError{Op: "write", Path: m.location(), Err: err}
	}
	return nil
}

// completed returns the normalized completed set of st, logging anything dropped.
func (m *Manager) completed(st *State) []phase.Phase {
	out, unknown := normalize(st.CompletedPhases)
	for _, tok := range unknown {
		m.logger.Warn("ignoring unknown phase in persisted state", "token", tok)
	}
	return out
}

func contains(phases []phase.Phase, p phase.Phase) bool {
	for _, q := range phases {
		if q == p {
			return true
		}
	}
	return false
}

func checkPhase(p phase.Phase) error {
	if !p.Valid() {
		return &phase.UnknownPhaseError{Name: string(p)}
	}
	return nil
}

// State returns a snapshot of the persisted state.
func (m *Manager) State() (*State, error) {
	return m.load()
}

// CurrentPhase returns the phase in progress, or "" when none is.
func (m *Manager) CurrentPhase() (phase.Phase, error) {
	st, err := m.load()
	if err != nil {
		return "", err
	}
	return m.current(st), nil
}

func (m *Manager) current(st *State) phase.Phase {
	if st.CurrentPhase == "" {
		return ""
	}
	p, err := phase.Parse(st.CurrentPhase)
	if err != nil {
		m.logger.Warn("ignoring unknown current phase in persisted state", "token", st.CurrentPhase)
		return ""
	}
	return p
}

// CompletedPhases returns the completed phases in sequence order. The result
// always satisfies the ordering invariant.
func (m *Manager) CompletedPhases() ([]phase.Phase, error) {
	st, err := m.load()
	if err != nil {
		return nil, err
	}
	return m.completed(st), nil
}

// RawCompletedPhases returns the persisted tokens exactly as stored.
func (m *Manager) RawCompletedPhases() ([]string, error) {
	st, err := m.load()
	if err != nil {
		return nil, err
	}
	return append([]string{}, st.CompletedPhases...), nil
}

// HasMarker reports whether the completion marker for p exists.
func (m *Manager) HasMarker(p phase.Phase) (bool, error) {
	if err := checkPhase(p); err != nil {
		return false, err
	}
	ok, err := m.backend.HasMarker(string(p))
	if err != nil {
		return false, &StateValidationError{Op: "marker", Path: m.location(), Err: err}
	}
	return ok, nil
}

// ValidatePrerequisites returns a *PrerequisiteError naming the first phase
// before p that is not completed. The first phase always passes.
func (m *Manager) ValidatePrerequisites(p phase.Phase) error {
	if err := checkPhase(p); err != nil {
		return err
	}
	st, err := m.load()
	if err != nil {
		return err
	}
	return prerequisites(p, m.completed(st))
}

func prerequisites(p phase.Phase, completed []phase.Phase) error {
	missing, ok := phase.FirstMissing(p, func(q phase.Phase) bool { return contains(completed, q) })
	if ok {
		return &PrerequisiteError{Target: p, Missing: missing}
	}
	return nil
}

// StartPhase marks p as the phase in progress once its prerequisites are met.
func (m *Manager) StartPhase(p phase.Phase) error {
	if err := checkPhase(p); err != nil {
		return err
	}
	st, err := m.load()
	if err != nil {
		return err
	}
	if p != phase.First() {
		if err := prerequisites(p, m.completed(st)); err != nil {
			return err
		}
	}
	st.CurrentPhase = string(p)
	if err := m.save(st); err != nil {
		return err
	}
	m.logger.Debug("phase started", "phase", p)
	return nil
}

// CompletePhase records p as completed. It is idempotent, does not require a
// prior StartPhase, and fails with a *PrerequisiteError if an earlier phase is
// not complete. When content is non-empty its hash becomes the context hash.
func (m *Manager) CompletePhase(p phase.Phase, content string) error {
	if err := checkPhase(p); err != nil {
		return err
	}
	st, err := m.load()
	if err != nil {
		return err
	}
	completed := m.completed(st)
	if err := prerequisites(p, completed); err != nil {
		return err
	}
	wasDone := contains(completed, p)
	if !wasDone {
		completed = append(completed, p)
	}
	st.CompletedPhases = tokens(completed)

	mk := &marker.Marker{Phase: string(p)}
	if content != "" {
		st.ContextHash = Hash(content)
		mk.ContentHash = st.ContextHash
	}
	if err := m.backend.SetMarker(mk); err != nil {
		return &StateValidationError{Op: "marker", Path: m.location(), Err: err}
	}
	if st.CurrentPhase == string(p) {
		st.CurrentPhase = ""
	}
	if err := m.save(st); err != nil {
		if !wasDone {
			if cerr := m.backend.ClearMarker(string(p)); cerr != nil {
				m.logger.Warn("failed to remove marker after failed save", "phase", p, "err", cerr)
			}
		}
		return err
	}
	m.logger.Debug("phase completed", "phase", p, "hashed", content != "")
	return nil
}

// ResetPhase marks p and every later phase incomplete and removes their
// markers. Resetting a phase that was never completed changes nothing.
func (m *Manager) ResetPhase(p phase.Phase) error {
	if err := checkPhase(p); err != nil {
		return err
	}
	st, err := m.load()
	if err != nil {
		return err
	}

	kept := make([]string, 0, len(st.CompletedPhases))
	for _, tok := range st.CompletedPhases {
		if q, err := phase.Parse(tok); err == nil && q.Index() >= p.Index() {
			continue
		}
		kept = append(kept, tok)
	}

	for _, q := range append([]phase.Phase{p}, phase.Later(p)...) {
		if err := m.backend.ClearMarker(string(q)); err != nil {
			return &StateValidationError{Op: "marker", Path: m.location(), Err: err}
		}
	}

	if len(kept) == len(st.CompletedPhases) {
		return nil
	}
	st.CompletedPhases = kept
	if err := m.save(st); err != nil {
		return err
	}
	m.logger.Debug("phase reset", "phase", p)
	return nil
}

// Status reports progress: current phase, completed phases, the next phase to
// complete ("" when all are done) and the phases currently allowed to start.
func (m *Manager) Status() (Status, error) {
	st, err := m.load()
	if err != nil {
		return Status{}, err
	}
	completed := m.completed(st)
	s := Status{
		CurrentPhase:    m.current(st),
		CompletedPhases: completed,
		CanProceedTo:    canProceedTo(completed),
		FeatureName:     st.FeatureName,
		LastUpdated:     st.LastUpdated,
	}
	for _, p := range phase.Sequence() {
		if !contains(completed, p) {
			s.NextPhase = p
			break
		}
	}
	return s, nil
}

// StorePhaseData replaces the context data stored for p. nil data removes it.
func (m *Manager) StorePhaseData(p phase.Phase, data map[string]interface{}) error {
	if err := checkPhase(p); err != nil {
		return err
	}
	st, err := m.load()
	if err != nil {
		return err
	}
	if data == nil {
		delete(st.PhaseData, string(p))
	} else {
		st.PhaseData[string(p)] = data
	}
	if err := m.save(st); err != nil {
		return err
	}
	m.logger.Debug("phase data stored", "phase", p, "keys", len(data))
	return nil
}

// PhaseData returns the context data stored for p. ok is false when nothing
// usable is stored.
func (m *Manager) PhaseData(p phase.Phase) (data map[string]interface{}, ok bool, err error) {
	if err := checkPhase(p); err != nil {
		return nil, false, err
	}
	st, err := m.load()
	if err != nil {
		return nil, false, err
	}
	raw, present := st.PhaseData[string(p)]
	if !present || raw == nil {
		return nil, false, nil
	}
	data, ok = raw.(map[string]interface{})
	if !ok {
		m.logger.Warn("ignoring non-map phase data", "phase", p, "type", fmt.Sprintf("%T", raw))
		return nil, false, nil
	}
	return data, true, nil
}

// ValidateContentIntegrity compares the hash of content with the stored
// context hash. With no stored hash there is nothing to contradict.
func (m *Manager) ValidateContentIntegrity(content string) (bool, error) {
	st, err := m.load()
	if err != nil {
		return false, err
	}
	if st.ContextHash == "" {
		return true, nil
	}
	return Hash(content) == st.ContextHash, nil
}

// Clear removes the persisted state and every phase marker.
func (m *Manager) Clear() error {
	if err := m.backend.RemoveState(); err != nil {
		return &StateValidationError{Op: "clear", Path: m.location(), Err: err}
	}
	names, err := m.backend.Markers()
	if err != nil {
		return &StateValidationError{Op: "clear", Path: m.location(), Err: err}
	}
	names = append(names, phase.Names()...)
	for _, name := range names {
		if err := m.backend.ClearMarker(name); err != nil {
			return &StateValidationError{Op: "clear", Path: m.location(), Err: err}
		}
	}
	m.logger.Debug("workflow state cleared")
	return nil
}

// Repair rewrites the completed set in normalized form and brings markers in
// line with it. Corrupt state is not repaired; the decode error is returned.
func (m *Manager) Repair() ([]string, error) {
	st, err := m.load()
	if err != nil {
		return nil, err
	}
	var fixes []string
	completed := m.completed(st)
	dirty := false

	normalized := tokens(completed)
	if !equalTokens(normalized, st.CompletedPhases) {
		fixes = append(fixes, fmt.Sprintf("normalized completed phases %v -> %v", st.CompletedPhases, normalized))
		st.CompletedPhases = normalized
		dirty = true
	}
	if st.CurrentPhase != "" && m.current(st) == "" {
		fixes = append(fixes, fmt.Sprintf("cleared unknown current phase %q", st.CurrentPhase))
		st.CurrentPhase = ""
		dirty = true
	}
	if dirty {
		if err := m.save(st); err != nil {
			return fixes, err
		}
	}

	for _, p := range phase.Sequence() {
		has, err := m.backend.HasMarker(string(p))
		if err != nil {
			return fixes, &StateValidationError{Op: "marker", Path: m.location(), Err: err}
		}
		done := contains(completed, p)
		switch {
		case done && !has:
			if err := m.backend.SetMarker(&marker.Marker{Phase: string(p)}); err != nil {
				return fixes, &StateValidationError{Op: "marker", Path: m.location(), Err: err}
			}
			fixes = append(fixes, fmt.Sprintf("recreated missing marker for %s", p))
		case !done && has:
			if err := m.backend.ClearMarker(string(p)); err != nil {
				return fixes, &StateValidationError{Op: "marker", Path: m.location(), Err: err}
			}
			fixes = append(fixes, fmt.Sprintf("removed stale marker for %s", p))
		}
	}
	return fixes, nil
}

func equalTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Hash returns the hex SHA-256 digest used for context integrity checks.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
