package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokistudios/specgate/internal/feature"
	"github.com/kokistudios/specgate/internal/marker"
	"github.com/kokistudios/specgate/internal/phase"
	"github.com/kokistudios/specgate/internal/store"
)

func quietLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel})
}

func newMemManager(t *testing.T) (*Manager, *store.MemoryBackend) {
	t.Helper()
	b := store.NewMemoryBackend()
	return NewManager(b, WithLogger(quietLogger())), b
}

func newFileManager(t *testing.T, dir string) *Manager {
	t.Helper()
	return NewManager(store.NewFileBackend(dir), WithLogger(quietLogger()))
}

func completeThrough(t *testing.T, m *Manager, last phase.Phase) {
	t.Helper()
	for _, p := range phase.Sequence() {
		require.NoError(t, m.CompletePhase(p, ""))
		if p == last {
			return
		}
	}
}

func TestStartPhase_OrderingInvariant(t *testing.T) {
	seq := phase.Sequence()
	for done := 0; done <= len(seq); done++ {
		for _, target := range seq {
			m, _ := newMemManager(t)
			for _, p := range seq[:done] {
				require.NoError(t, m.CompletePhase(p, ""))
			}
			err := m.StartPhase(target)
			if target.Index() <= done {
				assert.NoError(t, err, "done=%d target=%s", done, target)
			} else {
				var pe *PrerequisiteError
				require.ErrorAs(t, err, &pe, "done=%d target=%s", done, target)
				assert.Equal(t, seq[done], pe.Missing)
				assert.Equal(t, target, pe.Target)
			}
		}
	}
}

func TestStartPhase_SkipBlocked(t *testing.T) {
	m, _ := newMemManager(t)

	err := m.StartPhase(phase.PhaseSpecify)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPrerequisite))
	var pe *PrerequisiteError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, phase.PhaseProduct, pe.Missing)
	assert.Contains(t, err.Error(), "product")
	assert.Contains(t, pe.Guidance(), "/product")

	cur, err := m.CurrentPhase()
	require.NoError(t, err)
	assert.Equal(t, phase.Phase(""), cur, "failed start must not change current phase")
}

func TestStartPhase_SetsCurrent(t *testing.T) {
	m, _ := newMemManager(t)
	require.NoError(t, m.StartPhase(phase.PhaseProduct))

	cur, err := m.CurrentPhase()
	require.NoError(t, err)
	assert.Equal(t, phase.PhaseProduct, cur)

	require.NoError(t, m.CompletePhase(phase.PhaseProduct, ""))
	cur, _ = m.CurrentPhase()
	assert.Equal(t, phase.Phase(""), cur, "completing the current phase clears it")
}

func TestCompletePhase_KeepsOtherCurrent(t *testing.T) {
	m, _ := newMemManager(t)
	require.NoError(t, m.CompletePhase(phase.PhaseProduct, ""))
	require.NoError(t, m.StartPhase(phase.PhaseSpecify))
	require.NoError(t, m.CompletePhase(phase.PhaseProduct, ""))

	cur, _ := m.CurrentPhase()
	assert.Equal(t, phase.PhaseSpecify, cur)
}

func TestUnknownPhaseRejected(t *testing.T) {
	m, _ := newMemManager(t)
	bogus := phase.Phase("deploy")

	assert.ErrorIs(t, m.StartPhase(bogus), phase.ErrUnknownPhase)
	assert.ErrorIs(t, m.CompletePhase(bogus, ""), phase.ErrUnknownPhase)
	assert.ErrorIs(t, m.ResetPhase(bogus), phase.ErrUnknownPhase)
	assert.ErrorIs(t, m.ValidatePrerequisites(bogus), phase.ErrUnknownPhase)
	assert.ErrorIs(t, m.StorePhaseData(bogus, nil), phase.ErrUnknownPhase)
}

func TestCompletePhase_Idempotent(t *testing.T) {
	m, _ := newMemManager(t)
	require.NoError(t, m.CompletePhase(phase.PhaseProduct, ""))
	require.NoError(t, m.CompletePhase(phase.PhaseProduct, ""))

	raw, err := m.RawCompletedPhases()
	require.NoError(t, err)
	assert.Equal(t, []string{"product"}, raw)
}

func TestCompletePhase_EnforcesOrder(t *testing.T) {
	m, b := newMemManager(t)

	err := m.CompletePhase(phase.PhasePlan, "")
	var pe *PrerequisiteError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, phase.PhaseProduct, pe.Missing)

	has, _ := b.HasMarker("plan")
	assert.False(t, has, "rejected completion must not leave a marker")
}

func TestCompletePhase_WritesMarker(t *testing.T) {
	m, _ := newMemManager(t)
	require.NoError(t, m.CompletePhase(phase.PhaseProduct, "# Product"))

	has, err := m.HasMarker(phase.PhaseProduct)
	require.NoError(t, err)
	assert.True(t, has)
}

// flakyBackend fails every state write after the first okWrites.
type flakyBackend struct {
	*store.MemoryBackend
	okWrites int
}

func (b *flakyBackend) WriteState(data []byte) error {
	if b.okWrites <= 0 {
		return errors.New("disk full")
	}
	b.okWrites--
	return b.MemoryBackend.WriteState(data)
}

func TestCompletePhase_FailedSaveLeavesNoMarker(t *testing.T) {
	b := &flakyBackend{MemoryBackend: store.NewMemoryBackend()}
	m := NewManager(b, WithLogger(quietLogger()))

	err := m.CompletePhase(phase.PhaseProduct, "# Product")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateValidation)

	has, err := m.HasMarker(phase.PhaseProduct)
	require.NoError(t, err)
	assert.False(t, has, "marker must not claim a completion the state never recorded")
	_, err = b.ReadState()
	assert.ErrorIs(t, err, store.ErrNoState)
}

func TestCompletePhase_FailedRecompletionKeepsMarker(t *testing.T) {
	b := &flakyBackend{MemoryBackend: store.NewMemoryBackend(), okWrites: 1}
	m := NewManager(b, WithLogger(quietLogger()))
	require.NoError(t, m.CompletePhase(phase.PhaseProduct, ""))

	require.Error(t, m.CompletePhase(phase.PhaseProduct, "# Product v2"))
	has, err := m.HasMarker(phase.PhaseProduct)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestResetPhase_Cascades(t *testing.T) {
	m, b := newMemManager(t)
	completeThrough(t, m, phase.PhaseTasks)

	require.NoError(t, m.ResetPhase(phase.PhaseSpecify))

	completed, err := m.CompletedPhases()
	require.NoError(t, err)
	assert.Equal(t, []phase.Phase{phase.PhaseProduct}, completed)

	markers, _ := b.Markers()
	assert.Equal(t, []string{"product"}, markers)
}

func TestResetPhase_NeverCompletedIsNoop(t *testing.T) {
	m, _ := newMemManager(t)
	require.NoError(t, m.CompletePhase(phase.PhaseProduct, ""))
	before, _ := m.State()

	require.NoError(t, m.ResetPhase(phase.PhasePlan))

	after, _ := m.State()
	assert.Equal(t, before.CompletedPhases, after.CompletedPhases)
	assert.Equal(t, before.LastUpdated, after.LastUpdated)
}

func TestValidatePrerequisites(t *testing.T) {
	m, _ := newMemManager(t)
	assert.NoError(t, m.ValidatePrerequisites(phase.PhaseProduct))
	assert.ErrorIs(t, m.ValidatePrerequisites(phase.PhaseTasks), ErrPrerequisite)

	completeThrough(t, m, phase.PhasePlan)
	assert.NoError(t, m.ValidatePrerequisites(phase.PhaseTasks))
}

func TestStatus_FreshWorkspace(t *testing.T) {
	b := store.NewMemoryBackend()
	m := NewManager(b, WithLogger(quietLogger()), WithProbe(feature.Static("login")))

	s, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, phase.Phase(""), s.CurrentPhase)
	assert.Empty(t, s.CompletedPhases)
	assert.Equal(t, phase.PhaseProduct, s.NextPhase)
	assert.Equal(t, []phase.Phase{phase.PhaseProduct}, s.CanProceedTo)
	assert.Equal(t, "login", s.FeatureName)
	assert.False(t, s.Done())
}

func TestStatus_HappyPath(t *testing.T) {
	m, _ := newMemManager(t)
	for _, p := range phase.Sequence() {
		require.NoError(t, m.StartPhase(p))
		require.NoError(t, m.StorePhaseData(p, map[string]interface{}{"summary": "work for " + string(p)}))
		require.NoError(t, m.CompletePhase(p, "# "+string(p)))
	}

	s, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, phase.Sequence(), s.CompletedPhases)
	assert.Equal(t, phase.Phase(""), s.NextPhase)
	assert.True(t, s.Done())
	assert.Equal(t, phase.Sequence(), s.CanProceedTo)
	for _, p := range phase.Sequence() {
		assert.True(t, s.IsCompleted(p))
	}
}

func TestStatus_Partial(t *testing.T) {
	m, _ := newMemManager(t)
	completeThrough(t, m, phase.PhaseSpecify)

	s, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, phase.PhasePlan, s.NextPhase)
	assert.Equal(t, []phase.Phase{phase.PhaseProduct, phase.PhaseSpecify, phase.PhasePlan}, s.CanProceedTo)
}

func TestContentIntegrity(t *testing.T) {
	m, _ := newMemManager(t)

	ok, err := m.ValidateContentIntegrity("anything")
	require.NoError(t, err)
	assert.True(t, ok, "no stored hash validates")

	require.NoError(t, m.CompletePhase(phase.PhaseProduct, "vision: ship it"))
	ok, _ = m.ValidateContentIntegrity("vision: ship it")
	assert.True(t, ok)
	ok, _ = m.ValidateContentIntegrity("vision: ship it later")
	assert.False(t, ok)

	// Completing without content keeps the previous hash.
	require.NoError(t, m.CompletePhase(phase.PhaseSpecify, ""))
	ok, _ = m.ValidateContentIntegrity("vision: ship it")
	assert.True(t, ok)
}

func TestPhaseData_RoundTripAcrossManagers(t *testing.T) {
	dir := t.TempDir()
	m := newFileManager(t, dir)

	data := map[string]interface{}{
		"vision":      "Fast checkout",
		"constraints": []interface{}{"PCI compliant", "mobile first"},
		"metadata":    map[string]interface{}{"source": "product.md"},
	}
	require.NoError(t, m.StorePhaseData(phase.PhaseProduct, data))

	got, ok, err := m.PhaseData(phase.PhaseProduct)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, got)

	fresh := newFileManager(t, dir)
	got, ok, err = fresh.PhaseData(phase.PhaseProduct)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, got)

	_, ok, err = fresh.PhaseData(phase.PhasePlan)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorePhaseData_LastWriteWins(t *testing.T) {
	m, _ := newMemManager(t)
	require.NoError(t, m.StorePhaseData(phase.PhasePlan, map[string]interface{}{"a": "1"}))
	require.NoError(t, m.StorePhaseData(phase.PhasePlan, map[string]interface{}{"b": "2"}))

	got, ok, _ := m.PhaseData(phase.PhasePlan)
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"b": "2"}, got)
}

func TestStorePhaseData_NilRemoves(t *testing.T) {
	m, _ := newMemManager(t)
	require.NoError(t, m.StorePhaseData(phase.PhasePlan, map[string]interface{}{"a": "1"}))
	require.NoError(t, m.StorePhaseData(phase.PhasePlan, nil))

	_, ok, err := m.PhaseData(phase.PhasePlan)
	require.NoError(t, err)
	assert.False(t, ok)
	st, err := m.State()
	require.NoError(t, err)
	assert.NotContains(t, st.PhaseData, "plan")
}

func TestCorruptedStateIsValidationError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.StateFile), []byte("\x00\x01{[not yaml: ::"), 0644))

	m := newFileManager(t, dir)
	_, err := m.Status()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateValidation)

	var sve *StateValidationError
	require.ErrorAs(t, err, &sve)
	assert.Equal(t, "decode", sve.Op)
	assert.Equal(t, filepath.Join(dir, store.StateFile), sve.Path)

	_, err = m.Repair()
	assert.ErrorIs(t, err, ErrStateValidation, "repair does not rewrite corrupt state")

	require.NoError(t, m.Clear())
	s, err := m.Status()
	require.NoError(t, err)
	assert.Empty(t, s.CompletedPhases)
}

func TestMissingKeysBackfilled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.StateFile), []byte("feature_name: search\n"), 0644))

	m := newFileManager(t, dir)
	s, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, "search", s.FeatureName)
	assert.Empty(t, s.CompletedPhases)

	require.NoError(t, m.StorePhaseData(phase.PhaseProduct, map[string]interface{}{"vision": "v"}))
}

func TestNormalizationOnRead(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []phase.Phase
	}{
		{"unknown filtered", "completed_phases: [product, deploy, specify]\n", []phase.Phase{phase.PhaseProduct, phase.PhaseSpecify}},
		{"duplicates", "completed_phases: [product, product]\n", []phase.Phase{phase.PhaseProduct}},
		{"out of order", "completed_phases: [specify, product]\n", []phase.Phase{phase.PhaseProduct, phase.PhaseSpecify}},
		{"gap truncated", "completed_phases: [product, plan]\n", []phase.Phase{phase.PhaseProduct}},
		{"missing first", "completed_phases: [specify]\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := store.NewMemoryBackend()
			require.NoError(t, b.WriteState([]byte(tt.raw)))
			m := NewManager(b, WithLogger(quietLogger()))

			got, err := m.CompletedPhases()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClear(t *testing.T) {
	m, b := newMemManager(t)
	completeThrough(t, m, phase.PhasePlan)
	require.NoError(t, b.SetMarker(markerFor("stray")))

	require.NoError(t, m.Clear())

	_, err := b.ReadState()
	assert.ErrorIs(t, err, store.ErrNoState)
	markers, _ := b.Markers()
	assert.Empty(t, markers)
}

func TestRepair(t *testing.T) {
	m, b := newMemManager(t)
	require.NoError(t, b.WriteState([]byte("completed_phases: [product, specify, specify, bogus]\ncurrent_phase: deploy\n")))
	require.NoError(t, b.SetMarker(markerFor("product")))
	require.NoError(t, b.SetMarker(markerFor("tasks")))

	fixes, err := m.Repair()
	require.NoError(t, err)
	assert.Len(t, fixes, 4)

	raw, _ := m.RawCompletedPhases()
	assert.Equal(t, []string{"product", "specify"}, raw)
	markers, _ := b.Markers()
	assert.Equal(t, []string{"product", "specify"}, markers)
	cur, _ := m.CurrentPhase()
	assert.Equal(t, phase.Phase(""), cur)

	fixes, err = m.Repair()
	require.NoError(t, err)
	assert.Empty(t, fixes, "second repair is a no-op")
}

func TestStateValidationError_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, []byte("file, not dir"), 0644))

	m := NewManager(store.NewFileBackend(blocker), WithLogger(quietLogger()))
	err := m.StartPhase(phase.PhaseProduct)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateValidation)
}

func TestHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Hash(""))
	assert.NotEqual(t, Hash("a"), Hash("b"))
}

func markerFor(p string) *marker.Marker { return &marker.Marker{Phase: p} }
