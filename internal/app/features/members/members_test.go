package members_test

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/dalemusser/centerhub/internal/app/engine/coordinator"
	"github.com/dalemusser/centerhub/internal/app/engine/directory"
	"github.com/dalemusser/centerhub/internal/app/features/members"
	"github.com/dalemusser/centerhub/internal/app/store/memstore"
	"github.com/dalemusser/centerhub/internal/app/system/auth"
	"github.com/dalemusser/centerhub/internal/app/system/ratelimit"
	"github.com/dalemusser/centerhub/internal/app/system/respond"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/dalemusser/centerhub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type fixture struct {
	router  http.Handler
	handler *members.Handler
	mem     *memstore.Store
	center  models.Center
	other   models.Center
	global  models.User
	admin   models.User
	tutor   models.User
	pupil   models.User
	outside models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	center := testutil.NewCenter("C", "111-111", testutil.StandardClass("4eso-B"), testutil.CustomClass("Chess"))
	other := testutil.NewCenter("D", "222-333")
	f := &fixture{
		mem:     memstore.New(),
		center:  center,
		other:   other,
		global:  testutil.NewUser("root", models.GlobalAdmin(), nil, "", ""),
		admin:   testutil.NewUser("admin", models.CenterAdmin(), &center, "", ""),
		tutor:   testutil.NewUser("tutor", models.ClassAdmin("4eso-B"), &center, "4eso", "B"),
		pupil:   testutil.NewUser("pupil", models.Student(), &center, "4eso", "B"),
		outside: testutil.NewUser("outside", models.CenterAdmin(), &other, "", ""),
	}
	f.mem.Seed([]models.Center{center, other}, []models.User{f.global, f.admin, f.tutor, f.pupil, f.outside})

	st := f.mem.Docstore()
	co := coordinator.New(st, coordinator.Config{}, zap.NewNop())
	dir := directory.New(st.Users, zap.NewNop())
	sm, err := auth.NewSessionManager("", "test", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	r := chi.NewRouter()
	f.handler = members.NewHandler(co, dir, zap.NewNop())
	r.Mount("/members", members.Routes(f.handler, sm))
	f.router = r
	return f
}

func (f *fixture) do(method, target string, body any, actor *models.User) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	f.router.ServeHTTP(rec, testutil.NewJSONRequest(method, target, body, actor))
	return rec
}

func path(u models.User, suffix string) string {
	return "/members/" + u.ID.Hex() + suffix
}

func TestList(t *testing.T) {
	f := newFixture(t)
	q := url.Values{"center_id": {f.center.ID.Hex()}}

	rec := f.do(http.MethodGet, "/members?"+q.Encode(), nil, &f.admin)
	rec.AssertStatus(t, http.StatusOK)
	var all []models.User
	rec.DecodeJSON(t, &all)
	if len(all) != 3 {
		t.Errorf("len(members) = %d, want 3", len(all))
	}

	q.Set("course", "4eso")
	q.Set("class_name", "B")
	rec = f.do(http.MethodGet, "/members?"+q.Encode(), nil, &f.tutor)
	rec.AssertStatus(t, http.StatusOK)
	var class []models.User
	rec.DecodeJSON(t, &class)
	if len(class) != 2 {
		t.Errorf("len(class members) = %d, want 2", len(class))
	}

	f.do(http.MethodGet, "/members?"+q.Encode(), nil, &f.outside).AssertStatus(t, http.StatusForbidden)
	f.do(http.MethodGet, "/members?"+q.Encode(), nil, &f.pupil).AssertStatus(t, http.StatusForbidden)
	f.do(http.MethodGet, "/members?center_id=nope", nil, &f.global).AssertStatus(t, http.StatusUnprocessableEntity)
}

func TestGet(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, path(f.pupil, ""), nil, &f.admin)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"role":"student"`)

	f.do(http.MethodGet, path(f.pupil, ""), nil, &f.outside).AssertStatus(t, http.StatusNotFound)
	f.do(http.MethodGet, path(f.pupil, ""), nil, &f.global).AssertStatus(t, http.StatusOK)

	rec = f.do(http.MethodGet, "/members/me", nil, &f.pupil)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, f.pupil.ID.Hex())
}

func TestMoveClass(t *testing.T) {
	f := newFixture(t)
	body := map[string]string{"center_id": f.center.ID.Hex(), "class_name": "chess"}

	rec := f.do(http.MethodPost, path(f.tutor, "/class"), body, &f.admin)
	rec.AssertStatus(t, http.StatusOK)
	var got models.User
	rec.DecodeJSON(t, &got)
	if got.Course != models.CourseManagement || got.ClassName != "Chess" {
		t.Errorf("membership = %q/%q, want management/Chess", got.Course, got.ClassName)
	}
	if got.Role.Kind != models.KindStudent {
		t.Errorf("role = %s, want student after leaving the administered class", got.Role)
	}

	body["class_name"] = "Robotics"
	rec = f.do(http.MethodPost, path(f.pupil, "/class"), body, &f.admin)
	rec.AssertStatus(t, http.StatusUnprocessableEntity)
	var eb respond.ErrorBody
	rec.DecodeJSON(t, &eb)
	if eb.Reason != "absent" {
		t.Errorf("reason = %q, want absent", eb.Reason)
	}

	f.do(http.MethodPost, path(f.pupil, "/class"), map[string]string{"class_name": "Chess"}, &f.admin).
		AssertStatus(t, http.StatusUnprocessableEntity)
	f.do(http.MethodPost, path(f.pupil, "/class"), map[string]string{"center_id": "nope", "class_name": "Chess"}, &f.admin).
		AssertStatus(t, http.StatusUnprocessableEntity)
}

func TestChangeRole(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		actor *models.User
		role  string
		want  int
	}{
		{"center admin promotes to class admin", &f.admin, "admin-4eso-b", http.StatusOK},
		{"class admin cannot make center admins", &f.tutor, "center-admin", http.StatusForbidden},
		{"unknown role", &f.admin, "wizard", http.StatusUnprocessableEntity},
		{"class must exist", &f.admin, "admin-Painting", http.StatusUnprocessableEntity},
		{"center admin cannot grant global", &f.admin, "admin", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.do(http.MethodPut, path(f.pupil, "/role"), map[string]string{"role": tt.role}, tt.actor).
				AssertStatus(t, tt.want)
		})
	}

	rec := f.do(http.MethodGet, path(f.pupil, ""), nil, &f.global)
	rec.AssertContains(t, `"role":"admin-4eso-B"`)
}

// Scenario: a student joins another center by code, then leaves it.
func TestJoinAndLeave(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, path(f.pupil, "/center"), map[string]string{"code": " 222-333 "}, &f.pupil)
	rec.AssertStatus(t, http.StatusOK)
	var got models.User
	rec.DecodeJSON(t, &got)
	if !got.BelongsTo(f.other.ID) || got.Center != "222-333" {
		t.Fatalf("after join: org=%v center=%q", got.OrganizationID, got.Center)
	}
	if got.Course != models.SentinelDefault || got.ClassName != models.SentinelDefault {
		t.Errorf("membership = %q/%q, want default/default", got.Course, got.ClassName)
	}

	// Denied callers get the same answer whether or not the code exists.
	f.do(http.MethodPost, path(f.tutor, "/center"), map[string]string{"code": "222-333"}, &f.pupil).
		AssertStatus(t, http.StatusForbidden)
	f.do(http.MethodPost, path(f.tutor, "/center"), map[string]string{"code": "999-999"}, &f.pupil).
		AssertStatus(t, http.StatusForbidden)
	f.do(http.MethodPost, path(f.pupil, "/center"), map[string]string{"code": "999-999"}, &f.pupil).
		AssertStatus(t, http.StatusNotFound)
	f.do(http.MethodPost, path(f.pupil, "/center"), map[string]string{"code": "12-34"}, &f.pupil).
		AssertStatus(t, http.StatusUnprocessableEntity)

	rec = f.do(http.MethodPost, path(f.pupil, "/kick"), nil, &f.pupil)
	rec.AssertStatus(t, http.StatusOK)
	got = models.User{}
	rec.DecodeJSON(t, &got)
	if got.OrganizationID != nil || got.Center != models.SentinelPersonal {
		t.Errorf("after leave: org=%v center=%q, want personal", got.OrganizationID, got.Center)
	}
}

func TestJoinThrottled(t *testing.T) {
	f := newFixture(t)
	f.handler.Joins = ratelimit.NewJoinLimiter(100, 2, time.Minute)
	defer f.handler.Joins.Stop()

	wrong := map[string]string{"code": "999-999"}
	f.do(http.MethodPost, path(f.pupil, "/center"), wrong, &f.pupil).AssertStatus(t, http.StatusNotFound)
	f.do(http.MethodPost, path(f.pupil, "/center"), wrong, &f.pupil).AssertStatus(t, http.StatusNotFound)

	rec := f.do(http.MethodPost, path(f.pupil, "/center"), map[string]string{"code": "222-333"}, &f.pupil)
	rec.AssertStatus(t, http.StatusTooManyRequests)
	rec.AssertContains(t, "too many access code attempts")

	// The budget belongs to the actor, not to the user in the URL.
	f.do(http.MethodPost, path(f.tutor, "/center"), wrong, &f.pupil).
		AssertStatus(t, http.StatusTooManyRequests)

	// Other actors have their own budget.
	f.do(http.MethodPost, path(f.tutor, "/center"), map[string]string{"code": "222-333"}, &f.tutor).
		AssertStatus(t, http.StatusOK)
}

func TestKickAndBan(t *testing.T) {
	f := newFixture(t)

	f.do(http.MethodPost, path(f.admin, "/kick"), nil, &f.tutor).AssertStatus(t, http.StatusForbidden)
	f.do(http.MethodPost, path(f.pupil, "/ban"), nil, &f.outside).AssertStatus(t, http.StatusForbidden)

	rec := f.do(http.MethodPost, path(f.pupil, "/ban"), nil, &f.tutor)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"is_banned":true`)

	rec = f.do(http.MethodPost, path(f.pupil, "/unban"), nil, &f.admin)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"is_banned":false`)

	f.do(http.MethodPost, path(f.pupil, "/kick"), nil, &f.admin).AssertStatus(t, http.StatusOK)
	f.do(http.MethodPost, "/members/"+"000000000000000000000000"+"/kick", nil, &f.admin).
		AssertStatus(t, http.StatusNotFound)
}
