package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"
)

func TestSet_For(t *testing.T) {
	defer goleak.VerifyNone(t)
	s, err := NewSet(testPolicyConfig(), 1, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	p, err := s.For(ModePolicy)
	require.NoError(t, err)
	assert.IsType(t, &Linear{}, p)

	p, err = s.For("")
	require.NoError(t, err)
	assert.IsType(t, &Linear{}, p, "the learned policy is the default")

	p, err = s.For(ModeHeuristic)
	require.NoError(t, err)
	assert.IsType(t, Heuristic{}, p)

	p, err = s.For(ModeRandom)
	require.NoError(t, err)
	assert.IsType(t, &Random{}, p)

	_, err = s.For("oracle")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestSet_SpecialistsAndSnapshots(t *testing.T) {
	defer goleak.VerifyNone(t)

	// -- Setup --
	cfg := testPolicyConfig()
	cfg.Specialists = true
	cfg.SnapshotDir = t.TempDir()
	faultProne := []schemas.Conveyor{schemas.ConveyorLeft, schemas.ConveyorRight}
	logger := zaptest.NewLogger(t)

	s, err := NewSet(cfg, 1, faultProne, logger)
	require.NoError(t, err)
	require.Len(t, s.models, 3)

	learned, err := s.For(ModePolicy)
	require.NoError(t, err)
	require.IsType(t, &Router{}, learned)

	// -- Execution --
	anomalous := sampleObs
	anomalous.AnomalyMask = SpecialistMask(schemas.ConveyorLeft)
	for i := 0; i < 10; i++ {
		learned.Update(anomalous, 1, 1, anomalous)
	}
	require.NoError(t, s.Close(), "close saves every model")

	// -- Assertions --
	reloaded, err := NewSet(cfg, 1, faultProne, logger)
	require.NoError(t, err)
	defer reloaded.Close()

	steps := map[string]int64{}
	for _, m := range reloaded.models {
		steps[m.Name()] = m.Steps()
	}
	assert.Equal(t, map[string]int64{
		"general":          0,
		"specialist-Left":  10,
		"specialist-Right": 0,
	}, steps)
}

func TestSet_CorruptSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t)
	cfg := testPolicyConfig()
	cfg.SnapshotDir = t.TempDir()

	path, err := SnapshotPath(cfg.SnapshotDir, "general")
	require.NoError(t, err)
	require.NoError(t, SaveSnapshot(path, Snapshot{Name: "general"}))

	_, err = NewSet(cfg, 1, nil, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "failed to restore")

	// The broken snapshot must survive for inspection.
	snap, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, "general", snap.Name)
}
