package observability

import "testing"

func TestTurnStageWindowSnapshot(t *testing.T) {
	w := newTurnStageWindow(8)
	for _, ms := range []float64{100, 200, 300, 400} {
		w.Observe(StageGenerate, ms)
	}
	w.Observe(StagePersist, 10)

	snap := w.Snapshot()
	if len(snap.Stages) != 2 {
		t.Fatalf("stages = %d, want 2", len(snap.Stages))
	}

	var gen *TurnStageStats
	for i := range snap.Stages {
		if snap.Stages[i].Stage == StageGenerate {
			gen = &snap.Stages[i]
		}
	}
	if gen == nil {
		t.Fatalf("generate stage missing from snapshot")
	}
	if gen.Samples != 4 {
		t.Fatalf("samples = %d, want 4", gen.Samples)
	}
	if gen.LastMS != 400 {
		t.Fatalf("last = %v, want 400", gen.LastMS)
	}
	if gen.AvgMS != 250 {
		t.Fatalf("avg = %v, want 250", gen.AvgMS)
	}
	if gen.P50MS != 250 {
		t.Fatalf("p50 = %v, want 250", gen.P50MS)
	}
}

func TestTurnStageWindowWrapsAround(t *testing.T) {
	w := newTurnStageWindow(4)
	for i := 0; i < 10; i++ {
		w.Observe(StageTurnTotal, float64(i*100))
	}

	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("stages = %d, want 1", len(snap.Stages))
	}
	if snap.Stages[0].Samples != 4 {
		t.Fatalf("samples = %d, want window size 4", snap.Stages[0].Samples)
	}
}

func TestTurnStageWindowReset(t *testing.T) {
	w := newTurnStageWindow(4)
	w.Observe(StageAuthorize, 5)
	w.Reset()
	if got := w.Snapshot(); len(got.Stages) != 0 {
		t.Fatalf("stages after reset = %d, want 0", len(got.Stages))
	}
}

func TestIgnoresInvalidObservations(t *testing.T) {
	w := newTurnStageWindow(4)
	w.Observe("", 5)
	w.Observe(StageAuthorize, -1)
	if got := w.Snapshot(); len(got.Stages) != 0 {
		t.Fatalf("invalid samples were recorded: %+v", got.Stages)
	}
}
