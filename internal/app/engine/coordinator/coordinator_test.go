package coordinator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/centerhub/internal/app/engine/coordinator"
	"github.com/dalemusser/centerhub/internal/app/store/docstore"
	"github.com/dalemusser/centerhub/internal/app/store/memstore"
	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/dalemusser/centerhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type env struct {
	mem *memstore.Store
	co  *coordinator.Coordinator
}

func newEnv(t *testing.T, cfg coordinator.Config, centers []models.Center, users []models.User, opts ...coordinator.Option) *env {
	t.Helper()
	mem := memstore.New()
	mem.Seed(centers, users)
	return &env{mem: mem, co: coordinator.New(mem.Docstore(), cfg, zap.NewNop(), opts...)}
}

func (e *env) user(t *testing.T, id primitive.ObjectID) models.User {
	t.Helper()
	u, err := e.mem.Docstore().Users.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id.Hex(), err)
	}
	return u
}

func (e *env) center(t *testing.T, id primitive.ObjectID) (models.Center, bool) {
	t.Helper()
	c, err := e.mem.Docstore().Centers.GetByID(context.Background(), id)
	if err != nil {
		return models.Center{}, false
	}
	return c, true
}

func fixedID(id string) coordinator.Option {
	return coordinator.WithIDGenerator(func() string { return id })
}

// seqIDs hands out ids in order, one per cascade started.
func seqIDs(ids ...string) coordinator.Option {
	next := 0
	return coordinator.WithIDGenerator(func() string {
		id := ids[next]
		next++
		return id
	})
}

// assertClassSwept fails when a user still belongs to, or administers, the
// class named name, or when any class admin names a class the center lacks.
func (e *env) assertClassSwept(t *testing.T, centerID primitive.ObjectID, course, section, name string) {
	t.Helper()
	c, _ := e.center(t, centerID)
	for _, u := range e.mem.AllUsers() {
		if !u.BelongsTo(centerID) {
			continue
		}
		if u.Course == course && u.ClassName == section {
			t.Errorf("user %s still in %s/%s", u.Name, course, section)
		}
		if u.Role.IsClassAdminOf(name) {
			t.Errorf("user %s still administers %s", u.Name, name)
		}
		if u.Role.Kind == models.KindClassAdmin {
			if _, ok := c.ClassByName(u.Role.ClassName); !ok {
				t.Errorf("user %s administers missing class %q", u.Name, u.Role.ClassName)
			}
		}
	}
}

// classMembers seeds a center holding 4eso-B with n members, the first of
// them its class admin.
func classMembers(n int) (models.Center, []models.User) {
	center := testutil.NewCenter("Center", "111-111", testutil.StandardClass("4eso-B"))
	users := []models.User{testutil.NewUser("tutor", models.ClassAdmin("4eso-B"), &center, "4eso", "B")}
	for i := 1; i < n; i++ {
		users = append(users, testutil.NewUser("member", models.Student(), &center, "4eso", "B"))
	}
	return center, users
}

// Deleting "4eso-B" resets its class admin to a plain student in the
// default class and empties the class list.
func TestDeleteClassCascade_ScenarioA(t *testing.T) {
	center := testutil.NewCenter("Center", "111-111", testutil.StandardClass("4eso-B"))
	admin := testutil.NewUser("Tutor", models.ClassAdmin("4eso-B"), &center, "4eso", "B")
	e := newEnv(t, coordinator.Config{}, []models.Center{center}, []models.User{admin})

	if err := e.co.DeleteClassCascade(context.Background(), center.ID, center.Classes[0].ID); err != nil {
		t.Fatalf("DeleteClassCascade: %v", err)
	}

	got := e.user(t, admin.ID)
	if !got.Role.Equal(models.Student()) || got.Course != "default" || got.ClassName != "default" {
		t.Errorf("user = role %s %s/%s, want student default/default", got.Role, got.Course, got.ClassName)
	}
	c, _ := e.center(t, center.ID)
	if len(c.Classes) != 0 {
		t.Errorf("expected no classes, got %d", len(c.Classes))
	}
}

// No member of the class and no admin of it survive the delete, including
// admins placed in another class and custom-group members.
func TestDeleteClassCascade_NoOrphans(t *testing.T) {
	center := testutil.NewCenter("Center", "111-111",
		testutil.StandardClass("1ESO-A"), testutil.CustomClass("Robotics"))
	robotics := center.Classes[1]
	users := []models.User{
		testutil.NewUser("m1", models.Student(), &center, models.CourseManagement, "Robotics"),
		testutil.NewUser("m2", models.Student(), &center, models.CourseManagement, "Robotics"),
		testutil.NewUser("admin elsewhere", models.ClassAdmin("robotics"), &center, "1eso", "A"),
		testutil.NewUser("bystander", models.Student(), &center, "1eso", "A"),
	}
	e := newEnv(t, coordinator.Config{MaxBatchWrites: 2}, []models.Center{center}, users)

	if err := e.co.DeleteClassCascade(context.Background(), center.ID, robotics.ID); err != nil {
		t.Fatalf("DeleteClassCascade: %v", err)
	}

	for _, u := range e.mem.AllUsers() {
		if u.ClassName == "Robotics" {
			t.Errorf("user %s still in Robotics", u.Name)
		}
		if u.Role.IsClassAdminOf("Robotics") {
			t.Errorf("user %s still administers Robotics", u.Name)
		}
	}
	bystander := e.user(t, users[3].ID)
	if bystander.Course != "1eso" || bystander.ClassName != "A" {
		t.Errorf("bystander moved to %s/%s", bystander.Course, bystander.ClassName)
	}
	elsewhere := e.user(t, users[2].ID)
	if elsewhere.Course != "1eso" || elsewhere.ClassName != "A" {
		t.Errorf("demoted admin should stay in 1ESO-A, got %s/%s", elsewhere.Course, elsewhere.ClassName)
	}
	c, _ := e.center(t, center.ID)
	if _, ok := c.ClassByName("Robotics"); ok {
		t.Error("Robotics should be removed")
	}
	if len(c.Classes) != 1 {
		t.Errorf("expected 1 class left, got %d", len(c.Classes))
	}
}

func TestDeleteClassCascade_SecondCallIsNotFound(t *testing.T) {
	center := testutil.NewCenter("Center", "111-111", testutil.StandardClass("4eso-B"))
	e := newEnv(t, coordinator.Config{}, []models.Center{center},
		[]models.User{testutil.NewUser("m", models.Student(), &center, "4eso", "B")})
	classID := center.Classes[0].ID

	if err := e.co.DeleteClassCascade(context.Background(), center.ID, classID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	before := e.mem.Commits()

	err := e.co.DeleteClassCascade(context.Background(), center.ID, classID)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
	if e.mem.Commits() != before {
		t.Errorf("second delete committed %d batches", e.mem.Commits()-before)
	}
}

// All three members pick up the new code, and so does the center.
func TestPropagateCodeChange_ScenarioB(t *testing.T) {
	center := testutil.NewCenter("Center", "222-222")
	users := []models.User{
		testutil.NewUser("a", models.Student(), &center, "", ""),
		testutil.NewUser("b", models.CenterAdmin(), &center, "", ""),
		testutil.NewUser("c", models.Student(), &center, "", ""),
	}
	e := newEnv(t, coordinator.Config{}, []models.Center{center}, users)

	if err := e.co.PropagateCodeChange(context.Background(), center.ID, "333-444"); err != nil {
		t.Fatalf("PropagateCodeChange: %v", err)
	}
	for _, u := range users {
		if got := e.user(t, u.ID); got.Center != "333-444" {
			t.Errorf("user %s center = %q, want 333-444", u.Name, got.Center)
		}
	}
	c, _ := e.center(t, center.ID)
	if c.Code != "333-444" {
		t.Errorf("center code = %q, want 333-444", c.Code)
	}
}

func TestPropagateCodeChange_ChunkedKeepsCodeConsistent(t *testing.T) {
	center := testutil.NewCenter("Center", "222-222")
	other := testutil.NewCenter("Other", "222-222")
	var users []models.User
	for i := 0; i < 7; i++ {
		users = append(users, testutil.NewUser("member", models.Student(), &center, "", ""))
	}
	outsider := testutil.NewUser("outsider", models.Student(), &other, "", "")
	users = append(users, outsider)

	e := newEnv(t, coordinator.Config{MaxBatchWrites: 3}, []models.Center{center, other}, users)
	if err := e.co.PropagateCodeChange(context.Background(), center.ID, "555-666"); err != nil {
		t.Fatalf("PropagateCodeChange: %v", err)
	}

	c, _ := e.center(t, center.ID)
	for _, u := range e.mem.AllUsers() {
		if u.BelongsTo(center.ID) && u.Center != c.Code {
			t.Errorf("user %s center = %q, want %q", u.ID.Hex(), u.Center, c.Code)
		}
	}
	if got := e.user(t, outsider.ID); got.Center != "222-222" {
		t.Errorf("outsider center changed to %q", got.Center)
	}
	// 7 users + 1 center write in batches of 3.
	if e.mem.Commits() != 3 {
		t.Errorf("commits = %d, want 3", e.mem.Commits())
	}
}

func TestPropagateCodeChange_Errors(t *testing.T) {
	center := testutil.NewCenter("Center", "222-222")
	e := newEnv(t, coordinator.Config{}, []models.Center{center}, nil)

	if err := e.co.PropagateCodeChange(context.Background(), center.ID, "12-3456"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("malformed code: got %v, want ErrValidation", err)
	}
	if err := e.co.PropagateCodeChange(context.Background(), primitive.NewObjectID(), "123-456"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing center: got %v, want ErrNotFound", err)
	}
	if e.mem.Commits() != 0 {
		t.Errorf("expected no commits, got %d", e.mem.Commits())
	}
}

func TestPropagateCodeChange_PartialThenResume(t *testing.T) {
	center := testutil.NewCenter("Center", "222-222")
	var users []models.User
	for i := 0; i < 5; i++ {
		users = append(users, testutil.NewUser("member", models.Student(), &center, "", ""))
	}
	e := newEnv(t, coordinator.Config{MaxBatchWrites: 2}, []models.Center{center}, users, fixedID("cascade-1"))
	ctx := context.Background()

	e.mem.FailCommitsAfter(1, errors.New("connection reset"))
	err := e.co.PropagateCodeChange(ctx, center.ID, "777-888")

	var perr *apperr.PartialCascadeError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PartialCascadeError, got %v", err)
	}
	if perr.CascadeID != "cascade-1" || perr.Committed != 1 || perr.Total != 3 {
		t.Errorf("partial = %+v, want cascade-1 1/3", perr)
	}
	rec, err := e.co.Cascade(ctx, "cascade-1")
	if err != nil {
		t.Fatalf("Cascade: %v", err)
	}
	if rec.Status != models.CascadeFailed {
		t.Errorf("status = %q, want failed", rec.Status)
	}
	if c, _ := e.center(t, center.ID); c.Code != "222-222" {
		t.Errorf("center code written before users were swept: %q", c.Code)
	}

	e.mem.FailCommitsAfter(-1, nil)
	if err := e.co.Resume(ctx, "cascade-1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	c, _ := e.center(t, center.ID)
	if c.Code != "777-888" {
		t.Errorf("center code = %q, want 777-888", c.Code)
	}
	for _, u := range e.mem.AllUsers() {
		if u.Center != "777-888" {
			t.Errorf("user %s center = %q after resume", u.ID.Hex(), u.Center)
		}
	}
	rec, _ = e.co.Cascade(ctx, "cascade-1")
	if rec.Status != models.CascadeDone || rec.Attempts != 2 {
		t.Errorf("cursor = %s after %d attempts, want done after 2", rec.Status, rec.Attempts)
	}

	// Resuming a finished cascade does nothing.
	before := e.mem.Commits()
	if err := e.co.Resume(ctx, "cascade-1"); err != nil {
		t.Errorf("Resume done cascade: %v", err)
	}
	if e.mem.Commits() != before {
		t.Error("resume of a done cascade committed batches")
	}
}

func TestCascade_FailureBeforeAnyBatchAborts(t *testing.T) {
	center := testutil.NewCenter("Center", "222-222")
	e := newEnv(t, coordinator.Config{}, []models.Center{center},
		[]models.User{testutil.NewUser("m", models.Student(), &center, "", "")}, fixedID("cascade-2"))
	boom := errors.New("boom")
	e.mem.FailCommitsAfter(0, boom)

	err := e.co.PropagateCodeChange(context.Background(), center.ID, "999-000")
	if !errors.Is(err, boom) || errors.Is(err, apperr.ErrPartialCascade) {
		t.Fatalf("got %v, want the plain commit error", err)
	}
	rec, _ := e.co.Cascade(context.Background(), "cascade-2")
	if rec.Status != models.CascadeAborted {
		t.Errorf("status = %q, want aborted", rec.Status)
	}
}

func TestResume_GivesUpAfterMaxAttempts(t *testing.T) {
	center := testutil.NewCenter("Center", "222-222")
	var users []models.User
	for i := 0; i < 3; i++ {
		users = append(users, testutil.NewUser("m", models.Student(), &center, "", ""))
	}
	reported := 0
	e := newEnv(t, coordinator.Config{MaxBatchWrites: 2, MaxAttempts: 2}, []models.Center{center}, users,
		fixedID("cascade-3"),
		coordinator.WithReporter(func(context.Context, error, map[string]string) { reported++ }))
	ctx := context.Background()

	e.mem.FailCommitsAfter(1, errors.New("down"))
	if err := e.co.PropagateCodeChange(ctx, center.ID, "101-202"); !errors.Is(err, apperr.ErrPartialCascade) {
		t.Fatalf("got %v, want partial cascade", err)
	}
	e.mem.FailCommitsAfter(0, errors.New("still down"))
	if err := e.co.Resume(ctx, "cascade-3"); !errors.Is(err, apperr.ErrPartialCascade) {
		t.Fatalf("second attempt: got %v, want partial cascade", err)
	}
	if err := e.co.Resume(ctx, "cascade-3"); err != nil {
		t.Fatalf("third attempt: %v", err)
	}
	rec, _ := e.co.Cascade(ctx, "cascade-3")
	if rec.Status != models.CascadeAborted {
		t.Errorf("status = %q, want aborted", rec.Status)
	}
	if reported != 3 {
		t.Errorf("reported %d errors, want 3", reported)
	}
}

// A user written between the snapshot and the commit makes the batch
// conflict; the cascade re-plans and still converges.
func TestPropagateCodeChange_RetriesOnConflict(t *testing.T) {
	center := testutil.NewCenter("Center", "222-222")
	target := testutil.NewUser("m", models.Student(), &center, "", "")
	e := newEnv(t, coordinator.Config{}, []models.Center{center}, []models.User{target})

	fired := false
	e.mem.BeforeCommit(func(docstore.Batch) {
		if fired {
			return
		}
		fired = true
		_ = e.mem.Docstore().Users.SetBanned(context.Background(), target.ID, true)
	})

	if err := e.co.PropagateCodeChange(context.Background(), center.ID, "123-321"); err != nil {
		t.Fatalf("PropagateCodeChange: %v", err)
	}
	got := e.user(t, target.ID)
	if got.Center != "123-321" || !got.Banned {
		t.Errorf("user = center %q banned %v, want both writes kept", got.Center, got.Banned)
	}
}

func TestDeleteCenterCascade_KicksMembers(t *testing.T) {
	center := testutil.NewCenter("Center", "222-222", testutil.StandardClass("2BACH-C"))
	users := []models.User{
		testutil.NewUser("admin", models.CenterAdmin(), &center, "", ""),
		testutil.NewUser("tutor", models.ClassAdmin("2bach-C"), &center, "2bach", "C"),
		testutil.NewUser("pupil", models.Student(), &center, "2bach", "C"),
	}
	e := newEnv(t, coordinator.Config{MaxBatchWrites: 2}, []models.Center{center}, users)

	// A user joins while the delete is in flight.
	joiner := testutil.NewUser("joiner", models.Student(), nil, "", "")
	e.mem.Seed(nil, []models.User{joiner})
	fired := false
	e.mem.BeforeCommit(func(docstore.Batch) {
		if fired {
			return
		}
		fired = true
		if err := e.co.MoveUserToCenter(context.Background(), joiner, joiner.ID, "222-222"); err != nil {
			t.Errorf("join: %v", err)
		}
	})

	if err := e.co.DeleteCenterCascade(context.Background(), center.ID); err != nil {
		t.Fatalf("DeleteCenterCascade: %v", err)
	}
	if _, ok := e.center(t, center.ID); ok {
		t.Error("center should be deleted")
	}
	for _, u := range e.mem.AllUsers() {
		if u.OrganizationID != nil || u.Center != "personal" || u.Course != "personal" || u.ClassName != "personal" {
			t.Errorf("user %s not detached: %+v", u.Name, u)
		}
		if !u.Role.Equal(models.Student()) {
			t.Errorf("user %s role = %s, want student", u.Name, u.Role)
		}
	}
	if err := e.co.DeleteCenterCascade(context.Background(), center.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

// partialClassDelete stops a delete of 4eso-B after its first batch.
func partialClassDelete(t *testing.T, e *env, center models.Center) {
	t.Helper()
	e.mem.FailCommitsAfter(1, errors.New("connection reset"))
	err := e.co.DeleteClassCascade(context.Background(), center.ID, center.Classes[0].ID)
	if !errors.Is(err, apperr.ErrPartialCascade) {
		t.Fatalf("DeleteClassCascade: got %v, want partial cascade", err)
	}
	e.mem.FailCommitsAfter(-1, nil)
}

func TestDeleteClassCascade_PartialThenResume(t *testing.T) {
	center, users := classMembers(5)
	e := newEnv(t, coordinator.Config{MaxBatchWrites: 2}, []models.Center{center}, users, fixedID("del-1"))
	ctx := context.Background()

	partialClassDelete(t, e, center)
	if c, _ := e.center(t, center.ID); len(c.Classes) != 1 {
		t.Fatal("class removed before its members were swept")
	}
	rec, _ := e.co.Cascade(ctx, "del-1")
	if rec.Status != models.CascadeFailed || rec.BatchesCommitted != 1 {
		t.Fatalf("cursor = %s with %d batches, want failed with 1", rec.Status, rec.BatchesCommitted)
	}

	if err := e.co.Resume(ctx, "del-1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	e.assertClassSwept(t, center.ID, "4eso", "B", "4eso-B")
	if c, _ := e.center(t, center.ID); len(c.Classes) != 0 {
		t.Errorf("expected no classes, got %d", len(c.Classes))
	}
	if rec, _ = e.co.Cascade(ctx, "del-1"); rec.Status != models.CascadeDone {
		t.Errorf("status = %q, want done", rec.Status)
	}
}

// The class disappeared between the runs; the resume still sweeps the
// members left behind.
func TestDeleteClassCascade_ResumeAfterClassGone(t *testing.T) {
	center, users := classMembers(5)
	e := newEnv(t, coordinator.Config{MaxBatchWrites: 2}, []models.Center{center}, users, fixedID("del-2"))
	ctx := context.Background()

	partialClassDelete(t, e, center)
	gone := center
	gone.Classes = nil
	e.mem.Seed([]models.Center{gone}, nil)

	if err := e.co.Resume(ctx, "del-2"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	e.assertClassSwept(t, center.ID, "4eso", "B", "4eso-B")
	for _, u := range users {
		got := e.user(t, u.ID)
		if got.Course != models.SentinelDefault || got.ClassName != models.SentinelDefault {
			t.Errorf("user %s in %s/%s, want default/default", got.Name, got.Course, got.ClassName)
		}
	}
	if rec, _ := e.co.Cascade(ctx, "del-2"); rec.Status != models.CascadeDone {
		t.Errorf("status = %q, want done", rec.Status)
	}
}

// A new class took the old name before the resume; its members are left
// alone and the new class survives.
func TestDeleteClassCascade_ResumeAfterNameReused(t *testing.T) {
	center, users := classMembers(5)
	e := newEnv(t, coordinator.Config{MaxBatchWrites: 2}, []models.Center{center}, users, fixedID("del-3"))
	ctx := context.Background()

	partialClassDelete(t, e, center)
	reused := testutil.NewCenter("Center", "111-111", testutil.StandardClass("4eso-B"))
	reused.ID = center.ID
	e.mem.Seed([]models.Center{reused}, nil)
	before := e.mem.Commits()

	if err := e.co.Resume(ctx, "del-3"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if e.mem.Commits() != before {
		t.Errorf("resume committed %d batches, want none", e.mem.Commits()-before)
	}
	c, _ := e.center(t, center.ID)
	if cd, ok := c.ClassByName("4eso-B"); !ok || cd.ID != reused.Classes[0].ID {
		t.Errorf("new 4eso-B should survive, classes = %+v", c.Classes)
	}
	if rec, _ := e.co.Cascade(ctx, "del-3"); rec.Status != models.CascadeDone {
		t.Errorf("status = %q, want done", rec.Status)
	}
}

// A move into the class and a promotion to its admin land after the
// members were read but before the class is removed. Both bump the center
// version, so the final batch conflicts and the re-plan sweeps them too.
func TestDeleteClassCascade_ConcurrentMoveAndPromote(t *testing.T) {
	center := testutil.NewCenter("Center", "111-111",
		testutil.StandardClass("4eso-B"), testutil.StandardClass("4eso-C"))
	admin := testutil.NewUser("admin", models.CenterAdmin(), &center, "", "")
	inB := []models.User{
		testutil.NewUser("b1", models.Student(), &center, "4eso", "B"),
		testutil.NewUser("b2", models.Student(), &center, "4eso", "B"),
		testutil.NewUser("b3", models.Student(), &center, "4eso", "B"),
	}
	mover := testutil.NewUser("c1", models.Student(), &center, "4eso", "C")
	users := append([]models.User{admin, mover}, inB...)
	e := newEnv(t, coordinator.Config{MaxBatchWrites: 2}, []models.Center{center}, users)
	ctx := context.Background()

	fired := false
	e.mem.BeforeCommit(func(b docstore.Batch) {
		if fired || b.Center == nil || b.Center.RemoveClassID == nil {
			return
		}
		fired = true
		if err := e.co.MoveUserToClass(ctx, admin, mover.ID, center.ID, "4eso", "B"); err != nil {
			t.Errorf("MoveUserToClass: %v", err)
		}
		if err := e.co.ChangeRole(ctx, admin, inB[0].ID, models.ClassAdmin("4eso-B")); err != nil {
			t.Errorf("ChangeRole: %v", err)
		}
	})

	if err := e.co.DeleteClassCascade(ctx, center.ID, center.Classes[0].ID); err != nil {
		t.Fatalf("DeleteClassCascade: %v", err)
	}
	if !fired {
		t.Fatal("concurrent writes never ran")
	}
	e.assertClassSwept(t, center.ID, "4eso", "B", "4eso-B")
	if got := e.user(t, inB[0].ID); !got.Role.Equal(models.Student()) {
		t.Errorf("promoted user role = %s, want student", got.Role)
	}
	if got := e.user(t, mover.ID); got.Course != models.SentinelDefault {
		t.Errorf("moved user in %s/%s, want default", got.Course, got.ClassName)
	}
	c, _ := e.center(t, center.ID)
	if _, ok := c.ClassByName("4eso-C"); !ok || len(c.Classes) != 1 {
		t.Errorf("classes = %+v, want only 4eso-C", c.Classes)
	}
}

// A failed rotation resumed after a newer one finished must not bring its
// code back.
func TestPropagateCodeChange_NewerRotationWins(t *testing.T) {
	center := testutil.NewCenter("Center", "222-222")
	var users []models.User
	for i := 0; i < 5; i++ {
		users = append(users, testutil.NewUser("member", models.Student(), &center, "", ""))
	}
	e := newEnv(t, coordinator.Config{MaxBatchWrites: 2}, []models.Center{center}, users, seqIDs("old", "new"))
	ctx := context.Background()

	e.mem.FailCommitsAfter(1, errors.New("connection reset"))
	if err := e.co.PropagateCodeChange(ctx, center.ID, "111-111"); !errors.Is(err, apperr.ErrPartialCascade) {
		t.Fatalf("old rotation: got %v, want partial cascade", err)
	}
	e.mem.FailCommitsAfter(-1, nil)
	if err := e.co.PropagateCodeChange(ctx, center.ID, "333-333"); err != nil {
		t.Fatalf("new rotation: %v", err)
	}
	if rec, _ := e.co.Cascade(ctx, "old"); rec.Status != models.CascadeAborted {
		t.Errorf("old status = %q, want aborted", rec.Status)
	}

	before := e.mem.Commits()
	if err := e.co.Resume(ctx, "old"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if e.mem.Commits() != before {
		t.Errorf("resume of a superseded rotation committed %d batches", e.mem.Commits()-before)
	}
	e.assertCode(t, center.ID, "333-333")
}

// A rotation still writing when a newer one starts stops at its next batch.
func TestPropagateCodeChange_InFlightRotationStops(t *testing.T) {
	center := testutil.NewCenter("Center", "222-222")
	var users []models.User
	for i := 0; i < 5; i++ {
		users = append(users, testutil.NewUser("member", models.Student(), &center, "", ""))
	}
	e := newEnv(t, coordinator.Config{MaxBatchWrites: 2}, []models.Center{center}, users, seqIDs("old", "new"))
	ctx := context.Background()

	fired := false
	e.mem.BeforeCommit(func(docstore.Batch) {
		if fired {
			return
		}
		fired = true
		if err := e.co.PropagateCodeChange(ctx, center.ID, "333-333"); err != nil {
			t.Errorf("new rotation: %v", err)
		}
	})

	err := e.co.PropagateCodeChange(ctx, center.ID, "111-111")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("old rotation: got %v, want conflict", err)
	}
	if rec, _ := e.co.Cascade(ctx, "old"); rec.Status != models.CascadeAborted {
		t.Errorf("old status = %q, want aborted", rec.Status)
	}
	if rec, _ := e.co.Cascade(ctx, "new"); rec.Status != models.CascadeDone {
		t.Errorf("new status = %q, want done", rec.Status)
	}
	e.assertCode(t, center.ID, "333-333")
}

func (e *env) assertCode(t *testing.T, centerID primitive.ObjectID, code string) {
	t.Helper()
	if c, _ := e.center(t, centerID); c.Code != code {
		t.Errorf("center code = %q, want %q", c.Code, code)
	}
	for _, u := range e.mem.AllUsers() {
		if u.BelongsTo(centerID) && u.Center != code {
			t.Errorf("user %s center = %q, want %q", u.ID.Hex(), u.Center, code)
		}
	}
}
