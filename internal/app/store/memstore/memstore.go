// Package memstore is an in-memory implementation of the docstore
// contracts. All state lives behind one mutex, so a batch commit is a
// single critical section and therefore atomic. It backs the engine tests
// and can embed the engine in tools that have no MongoDB.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/centerhub/internal/app/store/docstore"
	"github.com/dalemusser/centerhub/internal/app/system/apperr"
	"github.com/dalemusser/centerhub/internal/app/system/paging"
	"github.com/dalemusser/centerhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store holds centers, users and cascades in maps keyed by ID.
type Store struct {
	mu       sync.Mutex
	centers  map[primitive.ObjectID]models.Center
	users    map[primitive.ObjectID]models.User
	cascades map[string]models.Cascade

	commits      int
	failAfter    int // fail every commit after this many succeeded; <0 disables
	failErr      error
	beforeCommit func(b docstore.Batch)
}

// New returns an empty store.
func New() *Store {
	return &Store{
		centers:   make(map[primitive.ObjectID]models.Center),
		users:     make(map[primitive.ObjectID]models.User),
		cascades:  make(map[string]models.Cascade),
		failAfter: -1,
	}
}

// Docstore returns the store wired into every docstore contract.
func (s *Store) Docstore() docstore.Store {
	return docstore.Store{
		Centers:  centerView{s},
		Users:    userView{s},
		Cascades: cascadeView{s},
		Writer:   writer{s},
	}
}

// FailCommitsAfter makes every commit after the next n successful ones
// return err without applying anything. Pass n<0 to stop failing.
func (s *Store) FailCommitsAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = 0
	s.failAfter = n
	s.failErr = err
}

// BeforeCommit registers a hook called (without the lock held) before each
// batch is applied. Tests use it to interleave concurrent writes.
func (s *Store) BeforeCommit(fn func(b docstore.Batch)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeCommit = fn
}

// Commits returns the number of batches committed so far.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Seed inserts documents as-is, bypassing normalization. Used by tests.
func (s *Store) Seed(centers []models.Center, users []models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range centers {
		s.centers[c.ID] = cloneCenter(c)
	}
	for _, u := range users {
		s.users[u.ID] = cloneUser(u)
	}
}

// AllUsers returns a snapshot of every user ordered by ID.
func (s *Store) AllUsers() []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, cloneUser(u))
	}
	sortUsers(out)
	return out
}

func cloneCenter(c models.Center) models.Center {
	if c.Classes != nil {
		c.Classes = append([]models.ClassDefinition(nil), c.Classes...)
	}
	return c
}

func cloneUser(u models.User) models.User {
	if u.OrganizationID != nil {
		id := *u.OrganizationID
		u.OrganizationID = &id
	}
	return u
}

func sortUsers(us []models.User) {
	sort.Slice(us, func(i, j int) bool { return us[i].ID.Hex() < us[j].ID.Hex() })
}

/* -------------------------------------------------------------------------- */
/* Centers                                                                    */
/* -------------------------------------------------------------------------- */

type centerView struct{ s *Store }

func (v centerView) Create(_ context.Context, c models.Center) (models.Center, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	now := time.Now().UTC()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	c.NameCI = text.Fold(c.Name)
	if c.Classes == nil {
		c.Classes = []models.ClassDefinition{}
	}
	c.CreatedAt, c.UpdatedAt = now, now
	v.s.centers[c.ID] = cloneCenter(c)
	return cloneCenter(c), nil
}

func (v centerView) GetByID(_ context.Context, id primitive.ObjectID) (models.Center, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.centers[id]
	if !ok {
		return models.Center{}, mongo.ErrNoDocuments
	}
	return cloneCenter(c), nil
}

func (v centerView) GetByCode(_ context.Context, code string) (models.Center, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var found []models.Center
	for _, c := range v.s.centers {
		if c.Code == code {
			found = append(found, c)
		}
	}
	if len(found) == 0 {
		return models.Center{}, mongo.ErrNoDocuments
	}
	// Codes may collide; resolve to the oldest center, as the Mongo store does.
	sort.Slice(found, func(i, j int) bool { return found[i].ID.Hex() < found[j].ID.Hex() })
	return cloneCenter(found[0]), nil
}

func (v centerView) CodeExists(ctx context.Context, code string) (bool, error) {
	_, err := v.GetByCode(ctx, code)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	return err == nil, err
}

func (v centerView) List(_ context.Context) ([]models.Center, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := make([]models.Center, 0, len(v.s.centers))
	for _, c := range v.s.centers {
		out = append(out, cloneCenter(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		return out[i].NameCI < out[j].NameCI
	})
	return out, nil
}

func (v centerView) ListPage(_ context.Context, k paging.Keyset) ([]models.Center, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := make([]models.Center, 0, len(v.s.centers))
	for _, c := range v.s.centers {
		if k.Admits(c.NameCI, c.ID) {
			out = append(out, cloneCenter(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		c := paging.Compare(out[i].NameCI, out[i].ID, out[j].NameCI, out[j].ID)
		if k.Direction == paging.Backward {
			return c > 0
		}
		return c < 0
	})
	if int64(len(out)) > k.Limit() {
		out = out[:k.Limit()]
	}
	return out, nil
}

func (v centerView) UpdateInfo(_ context.Context, id primitive.ObjectID, info docstore.CenterInfo) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.centers[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	if info.Name != nil {
		c.Name = *info.Name
		c.NameCI = text.Fold(*info.Name)
	}
	if info.ImageURL != nil {
		c.ImageURL = *info.ImageURL
	}
	if info.Pinned != nil {
		c.Pinned = *info.Pinned
	}
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	v.s.centers[id] = c
	return nil
}

func (v centerView) AddClass(_ context.Context, centerID primitive.ObjectID, cd models.ClassDefinition) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.centers[centerID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	for _, existing := range c.Classes {
		if existing.NameCI == cd.NameCI || strings.EqualFold(existing.Name, cd.Name) {
			return docstore.ErrDuplicateClass
		}
	}
	c = cloneCenter(c)
	c.Classes = append(c.Classes, cd)
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	v.s.centers[centerID] = c
	return nil
}

func (v centerView) UpdateClass(_ context.Context, centerID, classID primitive.ObjectID, info docstore.ClassInfo) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.centers[centerID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	c = cloneCenter(c)
	for i := range c.Classes {
		if c.Classes[i].ID != classID {
			continue
		}
		if info.ChatEnabled != nil {
			c.Classes[i].ChatEnabled = *info.ChatEnabled
		}
		if info.Pinned != nil {
			c.Classes[i].Pinned = *info.Pinned
		}
		if info.ImageURL != nil {
			c.Classes[i].ImageURL = *info.ImageURL
		}
		c.Version++
		c.UpdatedAt = time.Now().UTC()
		v.s.centers[centerID] = c
		return nil
	}
	return mongo.ErrNoDocuments
}

func (v centerView) Delete(_ context.Context, id primitive.ObjectID) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.centers[id]; !ok {
		return 0, nil
	}
	delete(v.s.centers, id)
	return 1, nil
}

/* -------------------------------------------------------------------------- */
/* Users                                                                      */
/* -------------------------------------------------------------------------- */

type userView struct{ s *Store }

func (v userView) Create(_ context.Context, u models.User) (models.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	now := time.Now().UTC()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.FillSentinels()
	u.Version = 0
	u.CreatedAt, u.UpdatedAt = now, now
	v.s.users[u.ID] = cloneUser(u)
	return cloneUser(u), nil
}

func (v userView) GetByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	u, ok := v.s.users[id]
	if !ok {
		return models.User{}, mongo.ErrNoDocuments
	}
	return cloneUser(u), nil
}

func (v userView) find(match func(models.User) bool) []models.User {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []models.User
	for _, u := range v.s.users {
		if match(u) {
			out = append(out, cloneUser(u))
		}
	}
	sortUsers(out)
	return out
}

func (v userView) FindByOrganization(_ context.Context, centerID primitive.ObjectID) ([]models.User, error) {
	return v.find(func(u models.User) bool { return u.BelongsTo(centerID) }), nil
}

func (v userView) FindByClass(_ context.Context, centerID primitive.ObjectID, course, className string) ([]models.User, error) {
	return v.find(func(u models.User) bool {
		return u.BelongsTo(centerID) && u.Course == course && u.ClassName == className
	}), nil
}

func (v userView) FindByAccessCode(_ context.Context, code string) ([]models.User, error) {
	return v.find(func(u models.User) bool { return u.Center == code }), nil
}

func (v userView) FindClassAdmins(_ context.Context, centerID primitive.ObjectID, className string) ([]models.User, error) {
	return v.find(func(u models.User) bool {
		return u.BelongsTo(centerID) && u.Role.IsClassAdminOf(className)
	}), nil
}

func (v userView) FindCodeMismatch(_ context.Context, centerID primitive.ObjectID, code string) ([]models.User, error) {
	return v.find(func(u models.User) bool { return u.BelongsTo(centerID) && u.Center != code }), nil
}

func (v userView) update(id primitive.ObjectID, p docstore.UserPatch) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	u, ok := v.s.users[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	p.Apply(&u)
	u.Version++
	u.UpdatedAt = time.Now().UTC()
	v.s.users[id] = u
	return nil
}

func (v userView) SetRole(_ context.Context, id primitive.ObjectID, role models.Role) error {
	return v.update(id, docstore.UserPatch{Role: &role})
}

func (v userView) SetMembership(_ context.Context, id primitive.ObjectID, m docstore.Membership) error {
	return v.update(id, docstore.UserPatch{
		OrganizationID:    m.OrganizationID,
		ClearOrganization: m.OrganizationID == nil,
		Center:            &m.Center,
		Course:            &m.Course,
		ClassName:         &m.ClassName,
	})
}

func (v userView) SetBanned(_ context.Context, id primitive.ObjectID, banned bool) error {
	return v.update(id, docstore.UserPatch{Banned: &banned})
}

/* -------------------------------------------------------------------------- */
/* Cascades                                                                   */
/* -------------------------------------------------------------------------- */

type cascadeView struct{ s *Store }

func (v cascadeView) Create(_ context.Context, c models.Cascade) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	v.s.cascades[c.ID] = c
	return nil
}

func (v cascadeView) Get(_ context.Context, id string) (models.Cascade, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.cascades[id]
	if !ok {
		return models.Cascade{}, mongo.ErrNoDocuments
	}
	return c, nil
}

func (v cascadeView) mutate(id string, fn func(*models.Cascade)) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	c, ok := v.s.cascades[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	fn(&c)
	c.UpdatedAt = time.Now().UTC()
	v.s.cascades[id] = c
	return nil
}

func (v cascadeView) Start(_ context.Context, id string) error {
	return v.mutate(id, func(c *models.Cascade) {
		c.Status = models.CascadeRunning
		c.Attempts++
	})
}

func (v cascadeView) Progress(_ context.Context, id string, committed, total int) error {
	return v.mutate(id, func(c *models.Cascade) {
		c.BatchesCommitted = committed
		c.BatchesTotal = total
	})
}

func (v cascadeView) Finish(_ context.Context, id, status, lastError string) error {
	return v.mutate(id, func(c *models.Cascade) {
		c.Status = status
		c.LastError = lastError
	})
}

func (v cascadeView) ListStale(_ context.Context, before time.Time, limit int) ([]models.Cascade, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []models.Cascade
	for _, c := range v.s.cascades {
		if (c.Status == models.CascadeRunning || c.Status == models.CascadeFailed) && c.UpdatedAt.Before(before) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v cascadeView) Supersede(_ context.Context, centerID primitive.ObjectID, kind, reason string) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	n := 0
	for id, c := range v.s.cascades {
		if c.CenterID != centerID || c.Kind != kind {
			continue
		}
		if c.Status != models.CascadeRunning && c.Status != models.CascadeFailed {
			continue
		}
		c.Status = models.CascadeAborted
		c.LastError = reason
		c.UpdatedAt = time.Now().UTC()
		v.s.cascades[id] = c
		n++
	}
	return n, nil
}

// Backdate shifts a cascade's UpdatedAt into the past. Used by tests.
func (s *Store) Backdate(id string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cascades[id]; ok {
		c.UpdatedAt = c.UpdatedAt.Add(-d)
		s.cascades[id] = c
	}
}

/* -------------------------------------------------------------------------- */
/* Batch writer                                                               */
/* -------------------------------------------------------------------------- */

type writer struct{ s *Store }

// Commit validates every write against the current state first and only
// then applies them, all under the lock.
func (w writer) Commit(_ context.Context, b docstore.Batch) error {
	w.s.mu.Lock()
	hook := w.s.beforeCommit
	w.s.mu.Unlock()
	if hook != nil {
		hook(b)
	}

	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	if w.s.failAfter >= 0 && w.s.commits >= w.s.failAfter {
		return w.s.failErr
	}

	now := time.Now().UTC()
	staged := make(map[primitive.ObjectID]models.User, len(b.Users))
	for _, uw := range b.Users {
		u, ok := w.s.users[uw.UserID]
		if !ok {
			// Deleted users no longer hold stale copies.
			continue
		}
		prev, dup := staged[uw.UserID]
		if dup {
			u = prev
		}
		if uw.Patch.Applied(u) {
			continue
		}
		if !dup && uw.ExpectVersion != docstore.AnyVersion && u.Version != uw.ExpectVersion {
			return apperr.ErrConflict
		}
		uw.Patch.Apply(&u)
		u.Version++
		u.UpdatedAt = now
		staged[uw.UserID] = u
	}

	var (
		center       models.Center
		centerExists bool
		applyCenter  bool
	)
	if cw := b.Center; cw != nil {
		center, centerExists = w.s.centers[cw.CenterID]
		if !cw.Applied(center, centerExists) {
			if !centerExists {
				return mongo.ErrNoDocuments
			}
			if cw.ExpectVersion != docstore.AnyVersion && center.Version != cw.ExpectVersion {
				return apperr.ErrConflict
			}
			center = cloneCenter(center)
			if cw.Code != nil {
				center.Code = *cw.Code
			}
			if cw.RemoveClassID != nil {
				kept := center.Classes[:0]
				for _, cd := range center.Classes {
					if cd.ID != *cw.RemoveClassID {
						kept = append(kept, cd)
					}
				}
				center.Classes = kept
			}
			center.Version++
			center.UpdatedAt = now
			applyCenter = true
		}
	}

	for id, u := range staged {
		w.s.users[id] = u
	}
	if applyCenter {
		if b.Center.Delete {
			delete(w.s.centers, b.Center.CenterID)
		} else {
			w.s.centers[b.Center.CenterID] = center
		}
	}
	w.s.commits++
	return nil
}
