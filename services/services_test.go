package services

import (
	"context"
	"testing"
	"time"

	"hkl-restful/config"
	"hkl-restful/database"
	"hkl-restful/models"
	"hkl-restful/policy"
	"hkl-restful/report"
	"hkl-restful/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	users   UserService
	events  EventService
	signups SignupService
}

// setupTestDB opens a private in-memory database for one test.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitDB(config.DatabaseConfig{
		Driver:   "sqlite",
		URL:      "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel: "silent",
	}, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newFixture(t *testing.T) *fixture {
	db := setupTestDB(t)
	eventRepo := repositories.NewEventRepository(db)
	return &fixture{
		db:      db,
		users:   NewUserService(repositories.NewUserRepository(db), UserServiceOptions{OpenRoleRegistration: true}),
		events:  NewEventService(eventRepo),
		signups: NewSignupService(repositories.NewSignupRepository(db), eventRepo, report.NewExporter(time.UTC)),
	}
}

func (f *fixture) register(t *testing.T, name, role string, city *string) policy.Actor {
	t.Helper()
	u, err := f.users.Register(context.Background(), &RegisterInput{
		Name:     name,
		Email:    name + "@example.com",
		Password: "password",
		Role:     role,
		City:     city,
	})
	require.NoError(t, err)
	return ActorOf(u)
}

func (f *fixture) event(t *testing.T, actor policy.Actor, title, city string) *models.Event {
	t.Helper()
	e, err := f.events.Create(context.Background(), actor, &CreateEventInput{
		Title: title, Date: "2024-05-01", City: city,
	})
	require.NoError(t, err)
	return e
}

func strPtr(s string) *string { return &s }

func assertKind(t *testing.T, want Kind, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, KindOf(err), err.Error())
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.users.Register(ctx, &RegisterInput{Name: " Ann ", Email: " Ann@Example.COM ", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.Name)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.NotEqual(t, "pw", u.PasswordHash)

	_, err = f.users.Register(ctx, &RegisterInput{Name: "Ann2", Email: "ANN@example.com", Password: "pw"})
	assertKind(t, KindConflict, err)

	logged, err := f.users.Login(ctx, &LoginInput{Email: "ann@EXAMPLE.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)

	_, err = f.users.Login(ctx, &LoginInput{Email: "ann@example.com", Password: "nope"})
	assertKind(t, KindAuthentication, err)
	_, err = f.users.Login(ctx, &LoginInput{Email: "ghost@example.com", Password: "pw"})
	assertKind(t, KindAuthentication, err)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input RegisterInput
		kind  Kind
	}{
		{"missing password", RegisterInput{Name: "a", Email: "a@x.io"}, KindValidation},
		{"bad email", RegisterInput{Name: "a", Email: "nope", Password: "pw"}, KindValidation},
		{"bad role", RegisterInput{Name: "a", Email: "a@x.io", Password: "pw", Role: "root"}, KindValidation},
		{"admin without city", RegisterInput{Name: "a", Email: "a@x.io", Password: "pw", Role: "admin", City: strPtr("  ")}, KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.users.Register(ctx, &tt.input)
			assertKind(t, tt.kind, err)
		})
	}
}

func TestRegister_ClosedRoleRegistration(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserService(repositories.NewUserRepository(db), UserServiceOptions{})

	_, err := users.Register(context.Background(), &RegisterInput{
		Name: "Boss", Email: "boss@example.com", Password: "pw", Role: "super_admin",
	})
	assertKind(t, KindAuthorization, err)
}

func TestResolveActor(t *testing.T) {
	f := newFixture(t)
	admin := f.register(t, "austin", "admin", strPtr(" Austin "))

	actor, err := f.users.ResolveActor(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, actor.Role)
	assert.Equal(t, "Austin", actor.CityName())

	_, err = f.users.ResolveActor(context.Background(), uuid.NewString())
	assertKind(t, KindAuthentication, err)
}

func TestCreateEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "austin", "admin", strPtr("Austin"))
	super := f.register(t, "root", "super_admin", nil)
	user := f.register(t, "ann", "user", nil)

	e, err := f.events.Create(ctx, admin, &CreateEventInput{Title: "Meetup", Date: "2024-05-01", City: "austin"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), e.Date.UTC())

	_, err = f.events.Create(ctx, admin, &CreateEventInput{Title: "X", Date: "2024-05-01", City: "Dallas"})
	assertKind(t, KindAuthorization, err)
	assert.Contains(t, err.Error(), policy.ReasonCityMismatch)

	_, err = f.events.Create(ctx, user, &CreateEventInput{Title: "X", Date: "2024-05-01", City: "Austin"})
	assertKind(t, KindAuthorization, err)

	// Validation is reported before authorization.
	_, err = f.events.Create(ctx, user, &CreateEventInput{Title: "X", City: "Austin"})
	assertKind(t, KindValidation, err)
	_, err = f.events.Create(ctx, super, &CreateEventInput{Title: "X", Date: "yesterday", City: "Austin"})
	assertKind(t, KindValidation, err)

	_, err = f.events.Create(ctx, super, &CreateEventInput{Title: "Anywhere", Date: "2024-05-02T18:00:00Z", City: "Dallas"})
	require.NoError(t, err)
}

func TestListEvents(t *testing.T) {
	f := newFixture(t)
	super := f.register(t, "root", "super_admin", nil)
	ctx := context.Background()

	for _, in := range []CreateEventInput{
		{Title: "Late", Date: "2024-06-01", City: "Austin"},
		{Title: "Early", Date: "2024-04-01", City: "Austin"},
		{Title: "Other", Date: "2024-05-01", City: "Dallas"},
	} {
		_, err := f.events.Create(ctx, super, &in)
		require.NoError(t, err)
	}

	all, err := f.events.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Early", all[0].Title)
	assert.Equal(t, "Late", all[2].Title)

	austin, err := f.events.List(ctx, "AUSTIN")
	require.NoError(t, err)
	assert.Len(t, austin, 2)

	none, err := f.events.List(ctx, "Houston")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestUpdateEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "austin", "admin", strPtr("Austin"))
	super := f.register(t, "root", "super_admin", nil)
	e := f.event(t, admin, "Meetup", "Austin")

	t.Run("admin edits fields in own city", func(t *testing.T) {
		updated, err := f.events.Update(ctx, admin, e.ID, &UpdateEventInput{
			Title: strPtr("Meetup v2"), City: strPtr("AUSTIN"), Location: strPtr("Library"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Meetup v2", updated.Title)
		assert.Equal(t, "Austin", updated.City)
		assert.Equal(t, "Library", updated.Location)
	})

	t.Run("admin cannot move event", func(t *testing.T) {
		_, err := f.events.Update(ctx, admin, e.ID, &UpdateEventInput{City: strPtr("Dallas")})
		assertKind(t, KindAuthorization, err)
		assert.Contains(t, err.Error(), policy.ReasonMoveEvent)
	})

	t.Run("empty title rejected", func(t *testing.T) {
		_, err := f.events.Update(ctx, admin, e.ID, &UpdateEventInput{Title: strPtr(" ")})
		assertKind(t, KindValidation, err)
	})

	t.Run("super admin moves event", func(t *testing.T) {
		updated, err := f.events.Update(ctx, super, e.ID, &UpdateEventInput{City: strPtr("Dallas")})
		require.NoError(t, err)
		assert.Equal(t, "Dallas", updated.City)
	})

	t.Run("admin cannot edit other city", func(t *testing.T) {
		_, err := f.events.Update(ctx, admin, e.ID, &UpdateEventInput{Title: strPtr("Mine")})
		assertKind(t, KindAuthorization, err)
		assert.Contains(t, err.Error(), policy.ReasonEditOtherCity)
	})

	t.Run("missing event", func(t *testing.T) {
		_, err := f.events.Update(ctx, super, uuid.NewString(), &UpdateEventInput{})
		assertKind(t, KindNotFound, err)
	})
}

func TestDeleteEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "austin", "admin", strPtr("Austin"))
	dallas := f.register(t, "dallas", "admin", strPtr("Dallas"))
	user := f.register(t, "ann", "user", nil)
	e := f.event(t, admin, "Meetup", "Austin")

	rec, err := f.signups.Create(ctx, user, &CreateSignupInput{Type: "event", EventID: &e.ID, PersonName: "Bob"})
	require.NoError(t, err)

	assertKind(t, KindAuthorization, f.events.Delete(ctx, dallas, e.ID))
	assertKind(t, KindAuthorization, f.events.Delete(ctx, user, e.ID))
	require.NoError(t, f.events.Delete(ctx, admin, e.ID))
	assertKind(t, KindNotFound, f.events.Delete(ctx, admin, e.ID))

	// Records outlive their event and keep the snapshotted city.
	var stored models.Signup
	require.NoError(t, f.db.First(&stored, "id = ?", rec.ID).Error)
	assert.Nil(t, stored.EventID)
	require.NotNil(t, stored.City)
	assert.Equal(t, "Austin", *stored.City)
}

func TestCreateSignup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "austin", "admin", strPtr("Austin"))
	user := f.register(t, "ann", "user", nil)
	e := f.event(t, admin, "Meetup", "Austin")

	t.Run("event record copies event city", func(t *testing.T) {
		rec, err := f.signups.Create(ctx, user, &CreateSignupInput{Type: "event", EventID: &e.ID, PersonName: " Bob "})
		require.NoError(t, err)
		assert.Equal(t, "Bob", rec.PersonName)
		assert.Equal(t, models.CategorySignup, rec.Category)
		require.NotNil(t, rec.City)
		assert.Equal(t, "Austin", *rec.City)
		require.NotNil(t, rec.Event)
		assert.Equal(t, "Meetup", rec.Event.Title)
		assert.Equal(t, "ann", rec.User.Name)
		assert.False(t, rec.Timestamp.IsZero())
	})

	t.Run("personal record without user city", func(t *testing.T) {
		rec, err := f.signups.Create(ctx, user, &CreateSignupInput{Type: "personal", Category: "conversation", PersonName: "Cy"})
		require.NoError(t, err)
		assert.Nil(t, rec.City)
		assert.Nil(t, rec.EventID)
		assert.Equal(t, models.CategoryConversation, rec.Category)
	})

	t.Run("personal record takes admin city", func(t *testing.T) {
		rec, err := f.signups.Create(ctx, admin, &CreateSignupInput{Type: "personal", PersonName: "Di"})
		require.NoError(t, err)
		require.NotNil(t, rec.City)
		assert.Equal(t, "Austin", *rec.City)
	})

	missing := uuid.NewString()
	tests := []struct {
		name  string
		input CreateSignupInput
		kind  Kind
	}{
		{"missing person name", CreateSignupInput{Type: "personal"}, KindValidation},
		{"invalid type", CreateSignupInput{Type: "party", PersonName: "x"}, KindValidation},
		{"invalid category", CreateSignupInput{Type: "personal", Category: "chat", PersonName: "x"}, KindValidation},
		{"event without id", CreateSignupInput{Type: "event", PersonName: "x"}, KindValidation},
		{"unknown event", CreateSignupInput{Type: "event", EventID: &missing, PersonName: "x"}, KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.signups.Create(ctx, user, &tt.input)
			assertKind(t, tt.kind, err)
		})
	}
}

func TestSignupCityIsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	super := f.register(t, "root", "super_admin", nil)
	austin := f.register(t, "austin", "admin", strPtr("Austin"))
	user := f.register(t, "ann", "user", nil)
	e := f.event(t, super, "Meetup", "Austin")

	_, err := f.signups.Create(ctx, user, &CreateSignupInput{Type: "event", EventID: &e.ID, PersonName: "Bob"})
	require.NoError(t, err)

	_, err = f.events.Update(ctx, super, e.ID, &UpdateEventInput{City: strPtr("Dallas")})
	require.NoError(t, err)

	list, err := f.signups.List(ctx, austin, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Austin", *list[0].City)
	assert.Equal(t, "Dallas", list[0].Event.City)
}

func TestListSignups_Scopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	super := f.register(t, "root", "super_admin", nil)
	austin := f.register(t, "austin", "admin", strPtr("Austin"))
	dallas := f.register(t, "dallas", "admin", strPtr("Dallas"))
	ann := f.register(t, "ann", "user", nil)
	bob := f.register(t, "bob", "user", nil)
	ea := f.event(t, super, "A", "Austin")
	ed := f.event(t, super, "D", "Dallas")

	for _, c := range []struct {
		actor policy.Actor
		event *models.Event
	}{{ann, ea}, {ann, ed}, {bob, ea}} {
		_, err := f.signups.Create(ctx, c.actor, &CreateSignupInput{Type: "event", EventID: &c.event.ID, PersonName: "p"})
		require.NoError(t, err)
	}
	_, err := f.signups.Create(ctx, bob, &CreateSignupInput{Type: "personal", PersonName: "p"})
	require.NoError(t, err)

	count := func(actor policy.Actor, city string) int {
		list, err := f.signups.List(ctx, actor, city)
		require.NoError(t, err)
		return len(list)
	}
	assert.Equal(t, 2, count(ann, ""))
	assert.Equal(t, 2, count(bob, "Dallas"), "user filter ignores city")
	assert.Equal(t, 2, count(austin, ""))
	assert.Equal(t, 2, count(austin, "Dallas"), "admin stays in own city")
	assert.Equal(t, 1, count(dallas, ""))
	assert.Equal(t, 4, count(super, ""))
	assert.Equal(t, 1, count(super, "dallas"))

	// Folding covers non-ASCII letters in both the filter and the policy.
	zurich := f.register(t, "zurich", "admin", strPtr("ZÜRICH"))
	ez := f.event(t, super, "Z", "zürich")
	_, err = f.signups.Create(ctx, ann, &CreateSignupInput{Type: "event", EventID: &ez.ID, PersonName: "p"})
	require.NoError(t, err)
	assert.Equal(t, 1, count(zurich, ""))
	assert.Equal(t, 1, count(super, "Zürich"))
	_, err = f.events.Update(ctx, zurich, ez.ID, &UpdateEventInput{Title: strPtr("Z2")})
	require.NoError(t, err)
	events, err := f.events.List(ctx, "ZÜRICH")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Z2", events[0].Title)

	// Records keep the spelling they were created with.
	_, err = f.signups.Create(ctx, zurich, &CreateSignupInput{Type: "personal", PersonName: "q"})
	require.NoError(t, err)
	zl, err := f.signups.List(ctx, super, "Zürich")
	require.NoError(t, err)
	var cities []string
	for _, rec := range zl {
		require.NotNil(t, rec.City)
		cities = append(cities, *rec.City)
	}
	assert.ElementsMatch(t, []string{"zürich", "ZÜRICH"}, cities)

	list, err := f.signups.List(ctx, super, "")
	require.NoError(t, err)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt), "newest first")
	}
}

func TestDeleteSignup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	super := f.register(t, "root", "super_admin", nil)
	austin := f.register(t, "austin", "admin", strPtr("Austin"))
	dallas := f.register(t, "dallas", "admin", strPtr("Dallas"))
	user := f.register(t, "ann", "user", nil)
	e := f.event(t, super, "Meetup", "Austin")

	rec, err := f.signups.Create(ctx, user, &CreateSignupInput{Type: "event", EventID: &e.ID, PersonName: "Bob"})
	require.NoError(t, err)

	assertKind(t, KindAuthorization, f.signups.Delete(ctx, user, rec.ID))
	assertKind(t, KindAuthorization, f.signups.Delete(ctx, dallas, rec.ID))
	require.NoError(t, f.signups.Delete(ctx, austin, rec.ID))
	assertKind(t, KindNotFound, f.signups.Delete(ctx, austin, rec.ID))

	personal, err := f.signups.Create(ctx, user, &CreateSignupInput{Type: "personal", PersonName: "Cy"})
	require.NoError(t, err)
	assertKind(t, KindAuthorization, f.signups.Delete(ctx, austin, personal.ID))
	require.NoError(t, f.signups.Delete(ctx, super, personal.ID))
}

func TestExportSignups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	super := f.register(t, "root", "super_admin", nil)
	austin := f.register(t, "austin", "admin", strPtr("Austin"))
	user := f.register(t, "ann", "user", nil)
	ea := f.event(t, super, "A", "Austin")
	ed := f.event(t, super, "D", "Dallas")

	for _, e := range []*models.Event{ea, ed, ed} {
		_, err := f.signups.Create(ctx, user, &CreateSignupInput{Type: "event", EventID: &e.ID, PersonName: "p"})
		require.NoError(t, err)
	}

	_, err := f.signups.Export(ctx, user, "")
	assertKind(t, KindAuthorization, err)

	out, err := f.signups.Export(ctx, super, "")
	require.NoError(t, err)
	assert.Equal(t, 3, out.Count)

	out, err = f.signups.Export(ctx, austin, "Dallas")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)

	out, err = f.signups.Export(ctx, super, "Houston")
	require.NoError(t, err)
	assert.Zero(t, out.Count)
	assert.Contains(t, string(out.CSV), "User Name,Category")
}

// vanishingEvents deletes an event right after reading it, the way a
// concurrent request can between the permission check and the write.
type vanishingEvents struct {
	repositories.EventRepository
	db *gorm.DB
}

func (v vanishingEvents) FindByID(ctx context.Context, id string) (*models.Event, error) {
	event, err := v.EventRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return event, v.db.Delete(&models.Event{}, "id = ?", id).Error
}

type vanishingSignups struct {
	repositories.SignupRepository
	db *gorm.DB
}

func (v vanishingSignups) FindByID(ctx context.Context, id string) (*models.Signup, error) {
	signup, err := v.SignupRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return signup, v.db.Delete(&models.Signup{}, "id = ?", id).Error
}

func TestWriteAfterConcurrentDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	super := f.register(t, "root", "super_admin", nil)
	austin := f.register(t, "austin", "admin", strPtr("Austin"))
	user := f.register(t, "ann", "user", nil)

	events := NewEventService(vanishingEvents{repositories.NewEventRepository(f.db), f.db})

	t.Run("event update", func(t *testing.T) {
		e := f.event(t, super, "A", "Austin")
		_, err := events.Update(ctx, austin, e.ID, &UpdateEventInput{Title: strPtr("B")})
		assertKind(t, KindNotFound, err)
	})

	t.Run("event delete", func(t *testing.T) {
		e := f.event(t, super, "A", "Austin")
		assertKind(t, KindNotFound, events.Delete(ctx, austin, e.ID))
	})

	t.Run("record delete", func(t *testing.T) {
		e := f.event(t, super, "A", "Austin")
		rec, err := f.signups.Create(ctx, user, &CreateSignupInput{Type: "event", EventID: &e.ID, PersonName: "p"})
		require.NoError(t, err)

		signups := NewSignupService(
			vanishingSignups{repositories.NewSignupRepository(f.db), f.db},
			repositories.NewEventRepository(f.db),
			report.NewExporter(time.UTC),
		)
		assertKind(t, KindNotFound, signups.Delete(ctx, austin, rec.ID))
	})
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2024-05-01", "2024-05-01T10:00", "2024-05-01T10:00:00", "2024-05-01T10:00:00Z", "2024-05-01T10:00:00.123-05:00"} {
		_, err := ParseDate(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseDate("05/01/2024")
	assertKind(t, KindValidation, err)
}
