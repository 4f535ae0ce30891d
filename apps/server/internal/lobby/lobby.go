package lobby

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"tablekit/apps/server/internal/results"
	"tablekit/apps/server/internal/table"
	"tablekit/game"
	"tablekit/protocol"
)

type Options struct {
	Catalog *game.Catalog
	Deliver table.DeliverFunc
	// Results receives every finished game; nil disables recording.
	Results results.Service
	IdleTTL time.Duration
	// VacancyGrace is how long a disconnected player's seat may hold a
	// running game before it is aborted. Zero aborts at once.
	VacancyGrace time.Duration

	OnTableUpdate func(info protocol.TableInfo)
	OnTableClosed func(num int)
}

// Lobby owns every table, keyed by table number.
type Lobby struct {
	mu      sync.RWMutex
	tables  map[int]*table.Table
	nextNum int
	opts    Options
}

func New(opts Options) *Lobby {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	return &Lobby{
		tables: make(map[int]*table.Table),
		opts:   opts,
	}
}

func (l *Lobby) Catalog() *game.Catalog { return l.opts.Catalog }

// Create opens a table for gameName under the next free number.
func (l *Lobby) Create(gameName string) (*table.Table, error) {
	def, err := l.opts.Catalog.Lookup(gameName)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.nextNum++
	num := l.nextNum
	t, err := table.New(num, def, l.opts.Deliver)
	if err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("create table: %w", err)
	}
	l.tables[num] = t
	l.mu.Unlock()

	t.AddGameOverHook(l.recordGameOver)
	t.AddVacancyHook(l.onVacancy)
	if l.opts.OnTableUpdate != nil {
		t.AddChangeHook(l.opts.OnTableUpdate)
		l.opts.OnTableUpdate(t.Info())
	}
	log.Printf("[Lobby] Created table %d (%s)", num, gameName)
	return t, nil
}

func (l *Lobby) Get(num int) (*table.Table, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tables[num]
	return t, ok
}

// List returns every open table's summary ordered by number.
func (l *Lobby) List() []protocol.TableInfo {
	l.mu.RLock()
	tables := make([]*table.Table, 0, len(l.tables))
	for _, t := range l.tables {
		tables = append(tables, t)
	}
	l.mu.RUnlock()

	out := make([]protocol.TableInfo, 0, len(tables))
	for _, t := range tables {
		out = append(out, t.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Num < out[j].Num })
	return out
}

// Close stops table num and drops it from the registry.
func (l *Lobby) Close(num int) bool {
	l.mu.Lock()
	t, ok := l.tables[num]
	delete(l.tables, num)
	l.mu.Unlock()
	if !ok {
		return false
	}
	t.Stop()
	log.Printf("[Lobby] Closed table %d", num)
	if l.opts.OnTableClosed != nil {
		l.opts.OnTableClosed(num)
	}
	return true
}

// Disconnect tells every table that username's connection is gone.
func (l *Lobby) Disconnect(username string) {
	l.mu.RLock()
	tables := make([]*table.Table, 0, len(l.tables))
	for _, t := range l.tables {
		tables = append(tables, t)
	}
	l.mu.RUnlock()

	for _, t := range tables {
		if err := t.ConnLost(username); err != nil {
			log.Printf("[Lobby] Table %d conn lost for %s: %v", t.Num(), username, err)
		}
	}
}

// Reap closes tables nobody has been attached to for the idle TTL.
func (l *Lobby) Reap() int {
	l.mu.RLock()
	var idle []int
	for num, t := range l.tables {
		if t.IsIdleFor(l.opts.IdleTTL) {
			idle = append(idle, num)
		}
	}
	l.mu.RUnlock()

	n := 0
	for _, num := range idle {
		if l.Close(num) {
			n++
		}
	}
	return n
}

// RunReaper reaps idle tables every interval until ctx is done.
func (l *Lobby) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Reap(); n > 0 {
				log.Printf("[Lobby] Reaped %d idle tables", n)
			}
		}
	}
}

// Shutdown stops every table.
func (l *Lobby) Shutdown() {
	l.mu.Lock()
	tables := l.tables
	l.tables = make(map[int]*table.Table)
	l.mu.Unlock()
	for _, t := range tables {
		t.Stop()
	}
}

func (l *Lobby) recordGameOver(info table.GameOverInfo) {
	if l.opts.Results == nil {
		return
	}
	rec := results.Record{
		GameID:  info.GameID,
		Table:   info.Table,
		Game:    info.Game,
		Score:   info.Score,
		EndedAt: info.EndedAt,
	}
	for i, username := range info.Players {
		rec.Players = append(rec.Players, results.PlayerResult{
			Username: username,
			Seat:     info.Seats[i],
			Code:     info.Codes[i].String(),
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.opts.Results.RecordGameOver(ctx, rec); err != nil {
		log.Printf("[Lobby] Record game %s failed: %v", info.GameID, err)
	}
}

// onVacancy aborts the running game if the seat is still vacant once the
// grace period has passed.
func (l *Lobby) onVacancy(num int, username string, seatNum int) {
	t, ok := l.Get(num)
	if !ok {
		return
	}
	gameID := t.Snapshot(game.Spectator).GameID
	abort := func() {
		st := t.Snapshot(game.Spectator)
		p, ok := st.Players.Player(username)
		if !ok || !p.Vacant || st.GameID != gameID || st.Model == nil {
			return
		}
		log.Printf("[Lobby] Table %d: seat %d (%s) still vacant, aborting %s", num, seatNum, username, gameID)
		if err := t.Abort(); err != nil {
			log.Printf("[Lobby] Table %d abort failed: %v", num, err)
		}
	}
	if l.opts.VacancyGrace <= 0 {
		abort()
		return
	}
	time.AfterFunc(l.opts.VacancyGrace, abort)
}
