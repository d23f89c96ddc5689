package orm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type team struct {
	ID      int64
	Name    string
	Budget  float64
	Active  bool
	Founded time.Time

	Players []*player
	Rosters []*roster
}

type player struct {
	ID     int64
	TeamID int64
	Nick   string
	Number uint8

	Team *team
}

type league struct {
	ID   int32
	Name string

	Rosters []*roster
}

// roster is a join record between team and league.
type roster struct {
	TeamID   int64
	LeagueID int32
	Seed     int16

	Team   *team
	League *league
}

type fixtureSchemas struct {
	teams   *Schema[team]
	players *Schema[player]
	leagues *Schema[league]
	rosters *Schema[roster]
	model   *Model
}

func newFixtureSchemas(t *testing.T) fixtureSchemas {
	t.Helper()

	teams := NewSchema("Team", []Field[team]{
		Column("ID", func(r *team) *int64 { return &r.ID }, PrimaryKey()),
		Column("Name", func(r *team) *string { return &r.Name }),
		Column("Budget", func(r *team) *float64 { return &r.Budget }),
		Column("Active", func(r *team) *bool { return &r.Active }),
		Column("Founded", func(r *team) *time.Time { return &r.Founded }),
	})
	players := NewSchema("Player", []Field[player]{
		Column("ID", func(r *player) *int64 { return &r.ID }, PrimaryKey()),
		Column("TeamID", func(r *player) *int64 { return &r.TeamID }),
		Column("Nick", func(r *player) *string { return &r.Nick }),
		Column("Number", func(r *player) *uint8 { return &r.Number }),
	})
	leagues := NewSchema("League", []Field[league]{
		Column("ID", func(r *league) *int32 { return &r.ID }, PrimaryKey()),
		Column("Name", func(r *league) *string { return &r.Name }),
	})
	rosters := NewSchema("Roster", []Field[roster]{
		Column("TeamID", func(r *roster) *int64 { return &r.TeamID }, PrimaryKey(), ForeignKey("Team")),
		Column("LeagueID", func(r *roster) *int32 { return &r.LeagueID }, PrimaryKey(), ForeignKey("League")),
		Column("Seed", func(r *roster) *int16 { return &r.Seed }),
	})

	BelongsTo(players, "TeamID", teams, func(p *player, t *team) { p.Team = t })
	BelongsTo(rosters, "TeamID", teams, func(r *roster, t *team) { r.Team = t })
	BelongsTo(rosters, "LeagueID", leagues, func(r *roster, l *league) { r.League = l })
	HasMany(teams, "Players", players, func(t *team, members []*player) { t.Players = members })
	HasMany(teams, "Rosters", rosters, func(t *team, members []*roster) { t.Rosters = members })
	HasMany(leagues, "Rosters", rosters, func(l *league, members []*roster) { l.Rosters = members })

	model, err := NewModel(ScalarKinds, teams, players, leagues, rosters)
	require.NoError(t, err)

	return fixtureSchemas{teams: teams, players: players, leagues: leagues, rosters: rosters, model: model}
}

var founded = time.Date(1990, time.March, 4, 0, 0, 0, 0, time.UTC)

func fixtureRows() map[string][]Row {
	return map[string][]Row{
		"teams": {
			{"id": int64(1), "name": "Comets", "budget": 12.5, "active": int64(1), "founded": founded},
			{"id": int64(2), "name": "Otters", "budget": 7.0, "active": int64(0), "founded": founded.Format(time.RFC3339)},
		},
		"players": {
			{"id": int64(10), "team_id": int64(1), "nick": "ace", "number": int64(9)},
			{"id": int64(11), "team_id": int64(1), "nick": "bolt", "number": int64(4)},
			{"id": int64(12), "team_id": int64(2), "nick": "cove", "number": int64(1)},
		},
		"leagues": {
			{"id": int64(100), "name": "North"},
			{"id": int64(200), "name": "South"},
		},
		"rosters": {
			{"team_id": int64(1), "league_id": int64(100), "seed": int64(1)},
			{"team_id": int64(1), "league_id": int64(200), "seed": int64(3)},
			{"team_id": int64(2), "league_id": int64(100), "seed": int64(2)},
		},
	}
}

type fakeGateway struct {
	tables    map[string][]Row
	fetchErr  error
	beginErr  error
	failOn    string
	failErr   error
	calls     []string
	begun     int
	committed int
	rolled    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{tables: fixtureRows()}
}

func (g *fakeGateway) FetchAll(_ context.Context, table Table) ([]Row, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return g.tables[table.Name], nil
}

func (g *fakeGateway) Begin(context.Context) (Transaction, error) {
	if g.beginErr != nil {
		return nil, g.beginErr
	}
	g.begun++
	return &fakeTransaction{gateway: g}, nil
}

func (g *fakeGateway) storageCalls() []string {
	return g.calls
}

type fakeTransaction struct {
	gateway *fakeGateway
}

func (tx *fakeTransaction) record(operation string, table Table, rows []Row) error {
	call := fmt.Sprintf("%s %s %d", operation, table.Entity, len(rows))
	tx.gateway.calls = append(tx.gateway.calls, call)
	if tx.gateway.failOn == operation+" "+table.Entity {
		return tx.gateway.failErr
	}
	return nil
}

func (tx *fakeTransaction) InsertBatch(_ context.Context, table Table, rows []Row) error {
	return tx.record("insert", table, rows)
}

func (tx *fakeTransaction) UpdateBatch(_ context.Context, table Table, rows []Row) error {
	return tx.record("update", table, rows)
}

func (tx *fakeTransaction) DeleteBatch(_ context.Context, table Table, rows []Row) error {
	return tx.record("delete", table, rows)
}

func (tx *fakeTransaction) Commit() error {
	tx.gateway.committed++
	return nil
}

func (tx *fakeTransaction) Rollback() error {
	tx.gateway.rolled++
	return nil
}

func openFixture(t *testing.T) (fixtureSchemas, *fakeGateway, *Context) {
	t.Helper()
	schemas := newFixtureSchemas(t)
	gateway := newFakeGateway()
	dbContext, err := Open(context.Background(), Config{Model: schemas.model, Gateway: gateway})
	require.NoError(t, err)
	return schemas, gateway, dbContext
}

func mustSet[T any](t *testing.T, dbContext *Context, s *Schema[T]) *Set[T] {
	t.Helper()
	set, err := SetOf(dbContext, s)
	require.NoError(t, err)
	return set
}

var errDiskFull = errors.New("disk full")
