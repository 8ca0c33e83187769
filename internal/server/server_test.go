package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"clowder/internal/breeds"
	"clowder/internal/config"
	"clowder/internal/db"
	"clowder/internal/engine"
	"clowder/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

// newCatalog serves a fixed breed catalog like the real API would.
func newCatalog(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"Persian"},{"name":"Sphynx"},{"name":"Maine Coon"}]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, catalogURL string) (*testServer, func()) {
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
	cfg := config.Default()
	validator := breeds.NewCatalogClient(catalogURL, cfg.BreedTimeout())
	e := engine.New(conn, cfg, validator)
	handler, err := New(Config{Engine: e, BasePath: "/v1"})
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
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
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

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestAgentMissionLifecycle(t *testing.T) {
	catalog := newCatalog(t)
	srv, cleanup := newTestServer(t, catalog.URL)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/agents", map[string]any{
		"name":             "Whiskers",
		"experience_years": 5,
		"breed":            "Persian",
		"salary":           1200.50,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create agent status %d: %s", res.StatusCode, string(data))
	}
	var agent AgentResponse
	if err := json.Unmarshal(data, &agent); err != nil {
		t.Fatalf("unmarshal agent: %v", err)
	}
	if agent.ID == 0 || agent.CurrentMissionID != nil {
		t.Fatalf("unexpected agent: %+v", agent)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/missions", map[string]any{
		"description": "Recon at the embassy",
		"targets": []map[string]any{
			{"name": "Dr. Paws", "country": "France", "notes": "prefers tuna"},
			{"name": "Lord Fluff", "country": "UK"},
		},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create mission status %d: %s", res.StatusCode, string(data))
	}
	var mission MissionResponse
	if err := json.Unmarshal(data, &mission); err != nil {
		t.Fatalf("unmarshal mission: %v", err)
	}
	if len(mission.Targets) != 2 || mission.AssignedAgents == nil {
		t.Fatalf("unexpected mission: %+v", mission)
	}

	assignURL := srv.URL + "/v1/agents/" + itoa(agent.ID) + "/assign_mission?mission_id=" + itoa(mission.ID)
	res, data = doJSON(t, client, http.MethodPost, assignURL, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign status %d: %s", res.StatusCode, string(data))
	}
	var assigned AgentResponse
	_ = json.Unmarshal(data, &assigned)
	if assigned.CurrentMissionID == nil || *assigned.CurrentMissionID != mission.ID {
		t.Fatalf("assignment not reflected: %+v", assigned)
	}

	// double assignment conflicts
	res, data = doJSON(t, client, http.MethodPost, assignURL, nil)
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "conflict" {
		t.Fatalf("expected conflict, got %d: %s", res.StatusCode, string(data))
	}

	// assigned missions cannot be deleted
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/missions/"+itoa(mission.ID), nil)
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "conflict" {
		t.Fatalf("expected delete conflict, got %d: %s", res.StatusCode, string(data))
	}

	// mission view lists the agent
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/missions/"+itoa(mission.ID), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get mission status %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &mission)
	if len(mission.AssignedAgents) != 1 || mission.AssignedAgents[0].ID != agent.ID {
		t.Fatalf("agent not listed on mission: %+v", mission)
	}

	// deleting the agent frees the mission for deletion
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/agents/"+itoa(agent.ID), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete agent status %d: %s", res.StatusCode, string(data))
	}
	var detail DetailResponse
	_ = json.Unmarshal(data, &detail)
	if detail.Detail != "agent deleted" {
		t.Fatalf("unexpected ack: %+v", detail)
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/missions/"+itoa(mission.ID), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete mission status %d: %s", res.StatusCode, string(data))
	}
}

func TestAgentErrors(t *testing.T) {
	catalog := newCatalog(t)
	srv, cleanup := newTestServer(t, catalog.URL)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/agents", map[string]any{
		"name":             "Nobody",
		"experience_years": 1,
		"breed":            "Chupacabra",
		"salary":           1,
	})
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "invalid_breed" {
		t.Fatalf("expected invalid_breed, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/agents/9999", nil)
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "not_found" {
		t.Fatalf("expected not_found, got %d: %s", res.StatusCode, string(data))
	}

	// schema violations come back as 400, not 422
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/agents", map[string]any{
		"name":             "Negative",
		"experience_years": -1,
		"breed":            "Persian",
		"salary":           1,
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative experience, got %d: %s", res.StatusCode, string(data))
	}
}

func TestBreedCatalogUnavailable(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()
	srv, cleanup := newTestServer(t, broken.URL)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/agents", map[string]any{
		"name":             "Whiskers",
		"experience_years": 1,
		"breed":            "Persian",
		"salary":           1,
	})
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "breed_validation_unavailable" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestCompletedMissionFrozen(t *testing.T) {
	catalog := newCatalog(t)
	srv, cleanup := newTestServer(t, catalog.URL)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/missions", map[string]any{
		"description": "One and done",
		"targets":     []map[string]any{},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create mission status %d: %s", res.StatusCode, string(data))
	}
	var mission MissionResponse
	_ = json.Unmarshal(data, &mission)

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/missions/"+itoa(mission.ID), map[string]any{
		"description":  "One and done",
		"is_completed": true,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/missions/"+itoa(mission.ID), map[string]any{
		"description":  "Reopened",
		"is_completed": false,
	})
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "conflict" {
		t.Fatalf("expected frozen conflict, got %d: %s", res.StatusCode, string(data))
	}
}

func TestListLimitZeroReturnsEmptyPage(t *testing.T) {
	catalog := newCatalog(t)
	srv, cleanup := newTestServer(t, catalog.URL)
	defer cleanup()
	client := srv.Client()

	for _, name := range []string{"Whiskers", "Mittens", "Shadow"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/agents", map[string]any{
			"name":             name,
			"experience_years": 1,
			"breed":            "Persian",
			"salary":           100,
		})
		if res.StatusCode != http.StatusOK {
			t.Fatalf("create %s status %d: %s", name, res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/agents?limit=0", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var agents []AgentResponse
	if err := json.Unmarshal(data, &agents); err != nil {
		t.Fatalf("unmarshal agents: %v", err)
	}
	if len(agents) != 0 {
		t.Fatalf("limit=0 returned %d rows, want 0", len(agents))
	}

	// absent limit still falls back to the default page
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/agents", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("default list status %d: %s", res.StatusCode, string(data))
	}
	agents = nil
	_ = json.Unmarshal(data, &agents)
	if len(agents) != 3 {
		t.Fatalf("default list returned %d rows, want 3", len(agents))
	}
}

func TestOpenAPIServedConcurrently(t *testing.T) {
	catalog := newCatalog(t)
	srv, cleanup := newTestServer(t, catalog.URL)
	defer cleanup()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/v1/openapi.json")
			if err != nil {
				t.Errorf("get openapi: %v", err)
				return
			}
			defer res.Body.Close()
			data, err := io.ReadAll(res.Body)
			if err != nil {
				t.Errorf("read openapi: %v", err)
				return
			}
			if res.StatusCode != http.StatusOK {
				t.Errorf("openapi status %d", res.StatusCode)
				return
			}
			var doc map[string]any
			if err := json.Unmarshal(data, &doc); err != nil {
				t.Errorf("openapi not valid json: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestHealth(t *testing.T) {
	catalog := newCatalog(t)
	srv, cleanup := newTestServer(t, catalog.URL)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	if res.Header.Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
