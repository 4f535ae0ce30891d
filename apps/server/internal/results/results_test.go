package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"

	"tablekit/apps/server/internal/auth"
)

func stores(t *testing.T) map[string]Service {
	t.Helper()
	mem, err := NewMemoryService(3)
	if err != nil {
		t.Fatal(err)
	}
	lite, err := NewSQLiteService(":memory:")
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { lite.Close() })
	return map[string]Service{"memory": mem, "sqlite": lite}
}

func record(id string, ended time.Time, players ...string) Record {
	rec := Record{GameID: id, Table: 1, Game: "tictactoe", Score: "x wins", EndedAt: ended.UTC().Truncate(time.Millisecond)}
	for i, p := range players {
		code := "lose"
		if i == 0 {
			code = "win"
		}
		rec.Players = append(rec.Players, PlayerResult{Username: p, Seat: i, Code: code})
	}
	return rec
}

func TestRecordAndListRecent(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g1 := record("g1", base, "alice", "bob")
			g2 := record("g2", base.Add(time.Minute), "carol", "alice")
			g3 := record("g3", base.Add(2*time.Minute), "bob", "carol")
			for _, rec := range []Record{g1, g2, g3} {
				if err := s.RecordGameOver(ctx, rec); err != nil {
					t.Fatalf("record %s: %v", rec.GameID, err)
				}
			}
			// a repeated game_over for the same instance is ignored
			dup := g1
			dup.Score = "changed"
			if err := s.RecordGameOver(ctx, dup); err != nil {
				t.Fatalf("duplicate: %v", err)
			}

			got, err := s.ListRecent(ctx, "alice", 10)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]Record{g2, g1}, got); diff != "" {
				t.Fatalf("alice's games (-want +got):\n%s", diff)
			}
			got, err = s.ListRecent(ctx, "carol", 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].GameID != "g3" {
				t.Fatalf("limit not applied: %+v", got)
			}
		})
	}
}

func TestRecordRejectsEmpty(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.RecordGameOver(context.Background(), Record{GameID: "g"})
			if !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestMemoryService_Evicts(t *testing.T) {
	s, _ := NewMemoryService(2)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.RecordGameOver(ctx, record(fmt.Sprintf("g%d", i), time.Now(), "alice")); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.ListRecent(ctx, "alice", 10)
	if len(got) != 2 || got[0].GameID != "g2" || got[1].GameID != "g1" {
		t.Fatalf("expected g2, g1; got %+v", got)
	}
}

func TestHTTP_ListsBySessionUser(t *testing.T) {
	authSvc := auth.NewManager(time.Hour)
	token, err := authSvc.Register("alice", "secret12")
	if err != nil {
		t.Fatal(err)
	}
	store, _ := NewMemoryService(10)
	_ = store.RecordGameOver(context.Background(), record("g1", time.Now(), "alice", "bob"))

	r := chi.NewRouter()
	NewHTTPHandler(authSvc, store).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/results", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		User  string   `json:"user"`
		Items []Record `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.User != "alice" || len(body.Items) != 1 || body.Items[0].GameID != "g1" {
		t.Fatalf("unexpected body %+v", body)
	}

	resp2, err := http.Get(srv.URL + "/api/results")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("anonymous list without user: %d", resp2.StatusCode)
	}
}

func TestHTTP_UserParamIsNormalized(t *testing.T) {
	store, _ := NewMemoryService(10)
	_ = store.RecordGameOver(context.Background(), record("g1", time.Now(), "alice", "bob"))

	r := chi.NewRouter()
	NewHTTPHandler(nil, store).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/results?user=%20Alice%20")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		User  string   `json:"user"`
		Items []Record `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.User != "alice" || len(body.Items) != 1 {
		t.Fatalf("mixed-case user param missed alice's games: %+v", body)
	}
}
