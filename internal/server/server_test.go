package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"backbeat/internal/config"
	"backbeat/internal/db"
	"backbeat/internal/domain"
	"backbeat/internal/engine"
	"backbeat/internal/migrate"
)

const (
	testGalaxyID = "ruby-moon"
	testTeamID   = "ruby-moon-team"
	testSecret   = "test-secret"
)

type testServer struct {
	URL    string
	db     *sql.DB
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default(testGalaxyID)
	e := engine.New(conn, cfg, zerolog.Nop())
	e.Now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	if err := e.InitGalaxy(context.Background(), testTeamID, testGalaxyID, "Ruby Moon", "boss"); err != nil {
		t.Fatalf("init galaxy: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:               testSecret,
			AllowLegacyViewerHeader: true,
			Logger:                  zerolog.Nop(),
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		db:     conn,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asBoss() map[string]string {
	return map[string]string{"X-Viewer-Id": "boss"}
}

func putProfile(t *testing.T, srv *testServer, profile map[string]any) {
	t.Helper()
	// Fields the schema requires but the scenario does not care about.
	for k, v := range map[string]any{
		"team_id":           testTeamID,
		"galaxy_id":         testGalaxyID,
		"version":           1,
		"edited_clip_count": 0,
	} {
		if _, ok := profile[k]; !ok {
			profile[k] = v
		}
	}
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/galaxies/"+testGalaxyID+"/profile", profile, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put profile: %d %s", res.StatusCode, string(data))
	}
}

func TestScheduleComputesAndSyncs(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	putProfile(t, srv, map[string]any{
		"releases":       []map[string]any{{"name": "Now You Got It", "date": "2026-03-15", "released": false}},
		"preferred_days": []string{"Saturday", "Sunday"},
		"roster":         []map[string]any{{"name": "Ruby", "role": "videographer & editor"}},
	})

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/galaxies/"+testGalaxyID+"/schedule", nil, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("schedule: %d %s", res.StatusCode, string(data))
	}
	var sched ScheduleResponse
	if err := json.Unmarshal(data, &sched); err != nil {
		t.Fatalf("unmarshal schedule: %v", err)
	}
	if len(sched.Slots) != 12 {
		t.Fatalf("want 12 slots, got %d", len(sched.Slots))
	}
	if !sched.Saved || sched.Sync == nil || sched.Sync.Created != 12 {
		t.Fatalf("first request should create 12 events: %+v", sched)
	}

	// The second pass finds a settled calendar.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/galaxies/"+testGalaxyID+"/schedule", nil, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second schedule: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &sched); err != nil {
		t.Fatalf("unmarshal schedule: %v", err)
	}
	if !sched.Saved || sched.Sync == nil || sched.Sync.Created != 0 || sched.Sync.Unchanged != 12 {
		t.Fatalf("second sync should be all unchanged: %+v", sched.Sync)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/galaxies/"+testGalaxyID+"/events", nil, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var events []domain.TeamTask
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	seen := map[string]bool{}
	for _, ev := range events {
		if seen[ev.Date] {
			t.Fatalf("duplicate event date %s", ev.Date)
		}
		seen[ev.Date] = true
	}
	if len(events) != 12 {
		t.Fatalf("want 12 calendar events, got %d", len(events))
	}
}

func TestScheduleReturnedWhenSyncFails(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	putProfile(t, srv, map[string]any{
		"releases":       []map[string]any{{"name": "Now You Got It", "date": "2026-03-15", "released": false}},
		"preferred_days": []string{"Saturday", "Sunday"},
	})

	// Break the calendar store; the profile and membership tables stay
	// intact, so the schedule still computes.
	if _, err := srv.db.Exec(`DROP TABLE tasks`); err != nil {
		t.Fatalf("drop tasks: %v", err)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/galaxies/"+testGalaxyID+"/schedule", nil, asBoss())
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("want 503 when sync cannot persist, got %d %s", res.StatusCode, string(data))
	}
	var sched ScheduleResponse
	if err := json.Unmarshal(data, &sched); err != nil {
		t.Fatalf("unmarshal schedule: %v", err)
	}
	if sched.Saved || sched.Sync != nil {
		t.Fatalf("failed sync must not report saved: %+v", sched)
	}
	if sched.Warning != "store_unavailable" {
		t.Fatalf("want store_unavailable warning, got %q", sched.Warning)
	}
	if len(sched.Slots) != 12 {
		t.Fatalf("schedule should still be computed, got %d slots", len(sched.Slots))
	}
}

func TestScheduleNotSyncedForMembers(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	putProfile(t, srv, map[string]any{
		"releases": []map[string]any{{"name": "Single", "date": "2026-03-15", "released": false}},
	})
	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/teams/"+testTeamID+"/members/ruby", map[string]any{
		"name": "Ruby", "role": "editor", "admin": false,
	}, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("add member: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/galaxies/"+testGalaxyID+"/schedule", nil, map[string]string{"X-Viewer-Id": "ruby"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("member schedule: %d %s", res.StatusCode, string(data))
	}
	var sched ScheduleResponse
	if err := json.Unmarshal(data, &sched); err != nil {
		t.Fatalf("unmarshal schedule: %v", err)
	}
	if sched.Saved || sched.Sync != nil {
		t.Fatalf("member request must not sync: %+v", sched)
	}
	if len(sched.Slots) == 0 {
		t.Fatalf("member still gets the computed schedule")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/galaxies/"+testGalaxyID+"/events", nil, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var events []domain.TeamTask
	_ = json.Unmarshal(data, &events)
	if len(events) != 0 {
		t.Fatalf("member view must not write events, got %d", len(events))
	}
}

func TestSyntheticDefaultsAssignFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	putProfile(t, srv, map[string]any{
		"raw_footage": "about 20 clips from the last shoot",
		"roster":      []map[string]any{{"name": "Ruby", "role": "editor"}},
	})
	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/teams/"+testTeamID+"/members/ruby", map[string]any{
		"name": "Ruby", "role": "editor", "admin": false,
	}, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("add member: %d %s", res.StatusCode, string(data))
	}

	// Admin sees the synthesized default chain on an empty store.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/galaxies/"+testGalaxyID+"/tasks", nil, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin tasks: %d %s", res.StatusCode, string(data))
	}
	var tasks []domain.TeamTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "default-review-footage" {
		t.Fatalf("unexpected default chain: %+v", tasks)
	}

	// Members never see synthetic tasks.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/galaxies/"+testGalaxyID+"/tasks", nil, map[string]string{"X-Viewer-Id": "ruby"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("member tasks: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("member should see no tasks yet, got %+v", tasks)
	}

	// Assigning a synthetic id materializes it under a durable id.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/galaxies/"+testGalaxyID+"/tasks/default-review-footage/assign", map[string]any{
		"assignee_id": "ruby",
	}, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign: %d %s", res.StatusCode, string(data))
	}
	var assigned domain.TeamTask
	if err := json.Unmarshal(data, &assigned); err != nil {
		t.Fatalf("unmarshal assigned: %v", err)
	}
	if assigned.Synthetic() {
		t.Fatalf("assigned task kept synthetic id %s", assigned.ID)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/galaxies/"+testGalaxyID+"/tasks", nil, map[string]string{"X-Viewer-Id": "ruby"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("member tasks: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != assigned.ID {
		t.Fatalf("member should now see the assigned task, got %+v", tasks)
	}

	// The assignee was notified.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/notifications", nil, map[string]string{"X-Viewer-Id": "ruby"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("notifications: %d %s", res.StatusCode, string(data))
	}
	var notes []domain.Notification
	if err := json.Unmarshal(data, &notes); err != nil {
		t.Fatalf("unmarshal notifications: %v", err)
	}
	if len(notes) != 1 || notes[0].Kind != "task.assigned" {
		t.Fatalf("want one task.assigned notification, got %+v", notes)
	}
}

func TestDeadlinesEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/galaxies/"+testGalaxyID+"/deadlines?date=2026-03-15", nil, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("deadlines: %d %s", res.StatusCode, string(data))
	}
	var d domain.Deadlines
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("unmarshal deadlines: %v", err)
	}
	if d.ShootDate != "2026-03-08" || d.EditDeadline != "2026-03-13" {
		t.Fatalf("unexpected deadlines: %+v", d)
	}
	if d.ShotListDeadline != "2026-03-05" || d.TreatmentDeadline != "2026-03-01" {
		t.Fatalf("unexpected prep deadlines: %+v", d)
	}
	// Today is 2026-03-02, so only the treatment date already passed.
	if len(d.Late) != 1 || d.Late[0] != "treatment" {
		t.Fatalf("want late=[treatment], got %v", d.Late)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/galaxies/"+testGalaxyID+"/deadlines?date=tomorrow", nil, asBoss())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 for bad date, got %d %s", res.StatusCode, string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/galaxies/"+testGalaxyID, nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("want unauthorized code, got %q", envelope.Error.Code)
	}

	// Health stays open.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should not require auth, got %d", res.StatusCode)
	}
}

func TestJWTAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "boss",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Team: testTeamID,
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/galaxies/"+testGalaxyID, nil, map[string]string{
		"Authorization": "Bearer " + signed,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("jwt request: %d %s", res.StatusCode, string(data))
	}
	var galaxy GalaxyResponse
	if err := json.Unmarshal(data, &galaxy); err != nil {
		t.Fatalf("unmarshal galaxy: %v", err)
	}
	if galaxy.TeamID != testTeamID {
		t.Fatalf("unexpected galaxy: %+v", galaxy)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/galaxies/"+testGalaxyID, nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token should 401, got %d %s", res.StatusCode, string(data))
	}
}

func TestMemberManagementAdminOnly(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/teams/"+testTeamID+"/members/ruby", map[string]any{
		"name": "Ruby", "role": "editor", "admin": false,
	}, asBoss())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin upsert: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/teams/"+testTeamID+"/members/sam", map[string]any{
		"name": "Sam", "admin": false,
	}, map[string]string{"X-Viewer-Id": "ruby"})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("member upsert should 409, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/teams/"+testTeamID+"/members/ruby", nil, asBoss())
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("remove member: %d %s", res.StatusCode, string(data))
	}
}
