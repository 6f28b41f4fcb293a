package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/centerhub/internal/app/features/health"
	"github.com/dalemusser/centerhub/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context, *readpref.ReadPref) error { return p.err }

type response struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Message  string `json:"message"`
	Error    string `json:"error"`
}

func serve(t *testing.T, db health.Pinger) (*httptest.ResponseRecorder, response) {
	t.Helper()
	rec := httptest.NewRecorder()
	health.Routes(health.NewHandler(db, zap.NewNop())).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want %q", ct, "application/json")
	}
	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return rec, resp
}

func TestServe(t *testing.T) {
	tests := []struct {
		name     string
		pingErr  error
		wantCode int
		wantDB   string
	}{
		{"connected", nil, http.StatusOK, "connected"},
		{"ping fails", errors.New("server selection timeout"), http.StatusServiceUnavailable, "disconnected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := serve(t, fakePinger{err: tt.pingErr})
			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			if resp.Database != tt.wantDB {
				t.Errorf("database = %q, want %q", resp.Database, tt.wantDB)
			}
			if tt.pingErr != nil && resp.Error != tt.pingErr.Error() {
				t.Errorf("error = %q, want %q", resp.Error, tt.pingErr.Error())
			}
		})
	}
}

func TestServe_MongoClient(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, resp := serve(t, db.Client())
	if rec.Code != http.StatusOK || resp.Status != "ok" {
		t.Errorf("got %d %q, want 200 ok", rec.Code, resp.Status)
	}
}
