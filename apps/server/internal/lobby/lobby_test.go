package lobby

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tablekit/apps/server/internal/results"
	"tablekit/apps/server/internal/table"
	"tablekit/envelope"
	"tablekit/game"
	"tablekit/games/highcard"
	"tablekit/games/tictactoe"
	"tablekit/protocol"
	"tablekit/seat"
)

func newLobby(t *testing.T, opts Options) *Lobby {
	t.Helper()
	catalog, err := game.NewCatalog(tictactoe.Definition, highcard.WithSeed(1))
	if err != nil {
		t.Fatal(err)
	}
	opts.Catalog = catalog
	if opts.Deliver == nil {
		opts.Deliver = func(string, *envelope.Envelope) {}
	}
	l := New(opts)
	t.Cleanup(l.Shutdown)
	return l
}

func startGame(t *testing.T, l *Lobby, num int, usernames ...string) {
	t.Helper()
	tbl, ok := l.Get(num)
	if !ok {
		t.Fatalf("table %d missing", num)
	}
	for i, u := range usernames {
		if err := tbl.Join(u); err != nil {
			t.Fatal(err)
		}
		if err := tbl.Submit(u, &protocol.Sit{TableHeader: protocol.NewTableHeader(u, num), Seat: i}); err != nil {
			t.Fatal(err)
		}
	}
	for _, u := range usernames {
		if err := tbl.Submit(u, &protocol.Start{TableHeader: protocol.NewTableHeader(u, num)}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCreate_NumbersAndLists(t *testing.T) {
	var mu sync.Mutex
	updates := map[int]protocol.TableInfo{}
	l := newLobby(t, Options{OnTableUpdate: func(info protocol.TableInfo) {
		mu.Lock()
		updates[info.Num] = info
		mu.Unlock()
	}})

	a, err := l.Create(tictactoe.Name)
	if err != nil {
		t.Fatal(err)
	}
	b, err := l.Create(highcard.Name)
	if err != nil {
		t.Fatal(err)
	}
	if a.Num() != 1 || b.Num() != 2 {
		t.Fatalf("numbers %d, %d", a.Num(), b.Num())
	}
	if _, err := l.Create("chess"); !errors.Is(err, game.ErrUnknownGame) {
		t.Fatalf("expected ErrUnknownGame, got %v", err)
	}

	list := l.List()
	if len(list) != 2 || list[0].Game != tictactoe.Name || list[1].MaxPlayers != 4 {
		t.Fatalf("unexpected list %+v", list)
	}

	if err := a.Join("alice"); err != nil {
		t.Fatal(err)
	}
	if err := a.Submit("alice", &protocol.Sit{TableHeader: protocol.NewTableHeader("alice", 1), Seat: 0}); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if got := updates[1]; len(got.Seats) != 1 || got.Seats[0].Username != "alice" {
		t.Fatalf("update not forwarded: %+v", got)
	}
}

func TestReap_ClosesIdleTables(t *testing.T) {
	closed := make(chan int, 4)
	l := newLobby(t, Options{IdleTTL: time.Nanosecond, OnTableClosed: func(num int) { closed <- num }})
	busy, _ := l.Create(tictactoe.Name)
	idle, _ := l.Create(tictactoe.Name)
	if err := busy.Join("alice"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)

	if n := l.Reap(); n != 1 {
		t.Fatalf("reaped %d tables", n)
	}
	if num := <-closed; num != idle.Num() {
		t.Fatalf("closed table %d", num)
	}
	if _, ok := l.Get(idle.Num()); ok {
		t.Fatalf("idle table still registered")
	}
	if err := idle.Join("bob"); !errors.Is(err, table.ErrTableClosed) {
		t.Fatalf("reaped table accepted a join: %v", err)
	}
}

func TestVacancy_AbortsAndRecords(t *testing.T) {
	store, err := results.NewMemoryService(10)
	if err != nil {
		t.Fatal(err)
	}
	l := newLobby(t, Options{Results: store, VacancyGrace: 10 * time.Millisecond})
	tbl, _ := l.Create(tictactoe.Name)
	startGame(t, l, tbl.Num(), "alice", "bob")

	l.Disconnect("bob")

	deadline := time.After(2 * time.Second)
	for {
		recs, err := store.ListRecent(context.Background(), "alice", 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) == 1 {
			for _, p := range recs[0].Players {
				if p.Code != protocol.ResultAborted.String() {
					t.Fatalf("expected aborted, got %+v", recs[0])
				}
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("vacant game was never aborted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	st := tbl.Snapshot(game.Spectator)
	if st.Players.Has("bob") {
		t.Fatalf("bob should be dropped with the aborted instance")
	}
	if p, _ := st.Players.Player("alice"); p.State != seat.Seated {
		t.Fatalf("alice should be back to Seated: %+v", p)
	}
}

func TestVacancy_ReclaimedInTime(t *testing.T) {
	l := newLobby(t, Options{VacancyGrace: 50 * time.Millisecond})
	tbl, _ := l.Create(tictactoe.Name)
	startGame(t, l, tbl.Num(), "alice", "bob")

	l.Disconnect("bob")
	if err := tbl.Join("bob"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if st := tbl.Snapshot(game.Spectator); st.Model == nil {
		t.Fatalf("game aborted although bob came back")
	}
}
