package centers_test

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/dalemusser/centerhub/internal/app/engine/coordinator"
	"github.com/dalemusser/centerhub/internal/app/engine/registry"
	"github.com/dalemusser/centerhub/internal/app/features/centers"
	"github.com/dalemusser/centerhub/internal/app/store/memstore"
	"github.com/dalemusser/centerhub/internal/app/system/accesscode"
	"github.com/dalemusser/centerhub/internal/app/system/auth"
	"github.com/dalemusser/centerhub/internal/app/system/ratelimit"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/dalemusser/centerhub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type fixture struct {
	router  http.Handler
	handler *centers.Handler
	mem     *memstore.Store
	center  models.Center
	global  models.User
	admin   models.User
	pupil   models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	center := testutil.NewCenter("IES Atlántico", "111-111")
	f := &fixture{
		mem:    memstore.New(),
		center: center,
		global: testutil.NewUser("root", models.GlobalAdmin(), nil, "", ""),
		admin:  testutil.NewUser("admin", models.CenterAdmin(), &center, "", ""),
		pupil:  testutil.NewUser("pupil", models.Student(), &center, "", ""),
	}
	f.mem.Seed([]models.Center{center}, []models.User{f.global, f.admin, f.pupil})

	co := coordinator.New(f.mem.Docstore(), coordinator.Config{}, zap.NewNop())
	reg := registry.New(f.mem.Docstore().Centers, co, registry.Config{DetachMembers: true}, zap.NewNop()).
		WithGenerator(accesscode.Sequence("222-333"))
	sm, err := auth.NewSessionManager("", "test", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}

	r := chi.NewRouter()
	f.handler = centers.NewHandler(reg, zap.NewNop())
	r.Mount("/centers", centers.Routes(f.handler, sm))
	f.router = r
	return f
}

func (f *fixture) do(method, target string, body any, actor *models.User) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	f.router.ServeHTTP(rec, testutil.NewJSONRequest(method, target, body, actor))
	return rec
}

func TestCreateAndList(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/centers", map[string]string{"name": "CEIP Sol"}, &f.global)
	rec.AssertStatus(t, http.StatusCreated)
	var created models.Center
	rec.DecodeJSON(t, &created)
	if created.Name != "CEIP Sol" || created.Code != "222-333" {
		t.Errorf("created = %+v", created)
	}

	rec = f.do(http.MethodGet, "/centers", nil, &f.global)
	rec.AssertStatus(t, http.StatusOK)
	var list []models.Center
	rec.DecodeJSON(t, &list)
	if len(list) != 2 {
		t.Errorf("len(list) = %d, want 2", len(list))
	}
}

func TestCreate_Errors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		body  any
		actor *models.User
		want  int
	}{
		{"anonymous", map[string]string{"name": "x"}, nil, http.StatusUnauthorized},
		{"center admin", map[string]string{"name": "x"}, &f.admin, http.StatusForbidden},
		{"missing name", map[string]string{}, &f.global, http.StatusUnprocessableEntity},
		{"markup only", map[string]string{"name": "<b></b>"}, &f.global, http.StatusUnprocessableEntity},
		{"unknown field", map[string]any{"name": "x", "code": "123-456"}, &f.global, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.do(http.MethodPost, "/centers", tt.body, tt.actor).AssertStatus(t, tt.want)
		})
	}
}

func TestGet_Scope(t *testing.T) {
	f := newFixture(t)
	other := testutil.NewCenter("Other", "999-999")
	outsider := testutil.NewUser("outsider", models.CenterAdmin(), &other, "", "")
	path := "/centers/" + f.center.ID.Hex()

	f.do(http.MethodGet, path, nil, &f.admin).AssertStatus(t, http.StatusOK)
	f.do(http.MethodGet, path, nil, &outsider).AssertStatus(t, http.StatusForbidden)
	f.do(http.MethodGet, path, nil, &f.pupil).AssertStatus(t, http.StatusForbidden)
	f.do(http.MethodGet, "/centers/not-an-id", nil, &f.global).AssertStatus(t, http.StatusUnprocessableEntity)
}

func TestByCode(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/centers/by-code/111-111", nil, &f.pupil)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "IES Atlántico")

	f.do(http.MethodGet, "/centers/by-code/000-000", nil, &f.pupil).AssertStatus(t, http.StatusNotFound)
	f.do(http.MethodGet, "/centers/by-code/abc", nil, &f.pupil).AssertStatus(t, http.StatusUnprocessableEntity)
}

func TestByCode_Throttled(t *testing.T) {
	f := newFixture(t)
	f.handler.Lookups = ratelimit.NewJoinLimiter(100, 2, time.Minute)
	defer f.handler.Lookups.Stop()

	f.do(http.MethodGet, "/centers/by-code/000-000", nil, &f.pupil).AssertStatus(t, http.StatusNotFound)
	f.do(http.MethodGet, "/centers/by-code/000-001", nil, &f.pupil).AssertStatus(t, http.StatusNotFound)

	rec := f.do(http.MethodGet, "/centers/by-code/111-111", nil, &f.pupil)
	rec.AssertStatus(t, http.StatusTooManyRequests)
	rec.AssertContains(t, "too many access code attempts")

	f.do(http.MethodGet, "/centers/by-code/111-111", nil, &f.admin).AssertStatus(t, http.StatusOK)
}

func TestUpdateAndPin(t *testing.T) {
	f := newFixture(t)
	path := "/centers/" + f.center.ID.Hex()

	rec := f.do(http.MethodPatch, path, map[string]string{"name": "IES Atlántico II", "image_url": "https://img.test/c.png"}, &f.admin)
	rec.AssertStatus(t, http.StatusOK)
	var got models.Center
	rec.DecodeJSON(t, &got)
	if got.Name != "IES Atlántico II" || got.ImageURL != "https://img.test/c.png" {
		t.Errorf("center = %+v", got)
	}

	f.do(http.MethodPatch, path, map[string]string{"image_url": "not a url"}, &f.admin).
		AssertStatus(t, http.StatusUnprocessableEntity)

	rec = f.do(http.MethodPost, path+"/pin", nil, &f.admin)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"is_pinned":true`)
}

func TestRotateCode_PropagatesToMembers(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/centers/"+f.center.ID.Hex()+"/code", nil, &f.admin)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "222-333")

	for _, u := range f.mem.AllUsers() {
		if u.BelongsTo(f.center.ID) && u.Center != "222-333" {
			t.Errorf("member %s still on %q", u.Name, u.Center)
		}
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	path := "/centers/" + f.center.ID.Hex()

	f.do(http.MethodDelete, path, nil, &f.admin).AssertStatus(t, http.StatusForbidden)
	f.do(http.MethodDelete, path, nil, &f.global).AssertStatus(t, http.StatusNoContent)
	f.do(http.MethodDelete, path, nil, &f.global).AssertStatus(t, http.StatusNoContent)

	for _, u := range f.mem.AllUsers() {
		if u.OrganizationID != nil {
			t.Errorf("user %s still attached to a deleted center", u.Name)
		}
	}
}

func TestPage(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"B", "D", "A"} {
		f.do(http.MethodPost, "/centers", map[string]string{"name": name}, &f.global).AssertStatus(t, http.StatusCreated)
	}

	var page struct {
		Items   []models.Center `json:"items"`
		Next    string          `json:"next_cursor"`
		HasNext bool            `json:"has_next"`
	}
	rec := f.do(http.MethodGet, "/centers/page?size=2", nil, &f.global)
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &page)
	if len(page.Items) != 2 || page.Items[0].Name != "A" || !page.HasNext {
		t.Fatalf("first page = %+v", page)
	}

	rec = f.do(http.MethodGet, "/centers/page?size=2&after="+url.QueryEscape(page.Next), nil, &f.global)
	rec.AssertStatus(t, http.StatusOK)
	page.Items = nil
	rec.DecodeJSON(t, &page)
	if len(page.Items) != 2 || page.Items[0].Name != "D" || page.HasNext {
		t.Errorf("second page = %+v", page)
	}

	f.do(http.MethodGet, "/centers/page", nil, &f.admin).AssertStatus(t, http.StatusForbidden)
}
