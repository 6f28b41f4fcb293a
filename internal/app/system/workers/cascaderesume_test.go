package workers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/centerhub/internal/app/engine/coordinator"
	"github.com/dalemusser/centerhub/internal/app/store/memstore"
	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/app/system/workers"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/dalemusser/centerhub/internal/testutil"
	"go.uber.org/zap"
)

func TestCascadeResume_RunOnce(t *testing.T) {
	center := testutil.NewCenter("Center", "222-222")
	var users []models.User
	for i := 0; i < 4; i++ {
		users = append(users, testutil.NewUser("m", models.Student(), &center, "", ""))
	}
	mem := memstore.New()
	mem.Seed([]models.Center{center}, users)
	co := coordinator.New(mem.Docstore(), coordinator.Config{MaxBatchWrites: 2}, zap.NewNop(),
		coordinator.WithIDGenerator(func() string { return "cascade-1" }))
	ctx := context.Background()

	mem.FailCommitsAfter(1, errors.New("primary stepped down"))
	if err := co.PropagateCodeChange(ctx, center.ID, "555-666"); !errors.Is(err, apperr.ErrPartialCascade) {
		t.Fatalf("got %v, want partial cascade", err)
	}
	mem.FailCommitsAfter(-1, nil)

	w := workers.NewCascadeResume(mem.Docstore().Cascades, co, zap.NewNop(), time.Minute, 2*time.Minute)

	if n := w.RunOnce(ctx); n != 0 {
		t.Fatalf("fresh cascade resumed too early: %d", n)
	}

	mem.Backdate("cascade-1", 5*time.Minute)
	if n := w.RunOnce(ctx); n != 1 {
		t.Fatalf("RunOnce() = %d, want 1", n)
	}
	for _, u := range mem.AllUsers() {
		if u.Center != "555-666" {
			t.Errorf("user center = %q after resume", u.Center)
		}
	}
	rec, _ := co.Cascade(ctx, "cascade-1")
	if rec.Status != models.CascadeDone {
		t.Errorf("status = %q, want done", rec.Status)
	}

	if n := w.RunOnce(ctx); n != 0 {
		t.Errorf("finished cascade picked up again: %d", n)
	}
}

func TestCascadeResume_StartStop(t *testing.T) {
	mem := memstore.New()
	co := coordinator.New(mem.Docstore(), coordinator.Config{}, zap.NewNop())
	w := workers.NewCascadeResume(mem.Docstore().Cascades, co, zap.NewNop(), 10*time.Millisecond, time.Minute)

	w.Start()
	time.Sleep(30 * time.Millisecond)
	w.Stop()
}
