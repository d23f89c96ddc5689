package orm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func playerNicks(players []*player) []string {
	nicks := make([]string, 0, len(players))
	for _, p := range players {
		nicks = append(nicks, p.Nick)
	}
	return nicks
}

func TestOpenResolvesSingleValuedEdges(t *testing.T) {
	schemas, _, dbContext := openFixture(t)
	players := mustSet(t, dbContext, schemas.players)
	teams := mustSet(t, dbContext, schemas.teams)
	rosters := mustSet(t, dbContext, schemas.rosters)

	comets, ok := teams.Find(1)
	require.True(t, ok)
	for _, p := range players.Items() {
		require.NotNil(t, p.Team)
		require.Equal(t, p.TeamID, p.Team.ID)
	}
	ace, ok := players.Find(10)
	require.True(t, ok)
	require.Same(t, comets, ace.Team)

	for _, r := range rosters.Items() {
		require.Equal(t, r.TeamID, r.Team.ID)
		require.Equal(t, r.LeagueID, r.League.ID)
	}
}

func TestOpenResolvesOneToMany(t *testing.T) {
	schemas, _, dbContext := openFixture(t)
	teams := mustSet(t, dbContext, schemas.teams)

	comets, _ := teams.Find(1)
	otters, _ := teams.Find(2)

	require.Equal(t, []string{"ace", "bolt"}, playerNicks(comets.Players))
	require.Equal(t, []string{"cove"}, playerNicks(otters.Players))
}

func TestOpenResolvesManyToManyFromBothSides(t *testing.T) {
	schemas, _, dbContext := openFixture(t)
	teams := mustSet(t, dbContext, schemas.teams)
	leagues := mustSet(t, dbContext, schemas.leagues)

	comets, _ := teams.Find(1)
	require.Len(t, comets.Rosters, 2)
	for _, r := range comets.Rosters {
		require.Equal(t, int64(1), r.TeamID)
	}

	north, _ := leagues.Find(100)
	require.Len(t, north.Rosters, 2)
	for _, r := range north.Rosters {
		require.Equal(t, int32(100), r.LeagueID)
	}
	south, _ := leagues.Find(200)
	require.Len(t, south.Rosters, 1)
	require.Equal(t, "Comets", south.Rosters[0].Team.Name)
}

func TestOpenAssignsEmptyCollections(t *testing.T) {
	schemas := newFixtureSchemas(t)
	gateway := newFakeGateway()
	gateway.tables["teams"] = append(gateway.tables["teams"], Row{"id": int64(3), "name": "Lonely", "budget": 0.0, "active": false, "founded": founded})

	dbContext, err := Open(context.Background(), Config{Model: schemas.model, Gateway: gateway})
	require.NoError(t, err)

	lonely, ok := mustSet(t, dbContext, schemas.teams).Find(3)
	require.True(t, ok)
	require.NotNil(t, lonely.Players)
	require.Empty(t, lonely.Players)
	require.Empty(t, lonely.Rosters)
}

func TestResolveIsIdempotent(t *testing.T) {
	schemas, _, dbContext := openFixture(t)
	teams := mustSet(t, dbContext, schemas.teams)
	players := mustSet(t, dbContext, schemas.players)

	before := map[int64][]*player{}
	for _, tm := range teams.Items() {
		before[tm.ID] = tm.Players
	}
	owners := map[int64]*team{}
	for _, p := range players.Items() {
		owners[p.ID] = p.Team
	}

	require.NoError(t, dbContext.Resolve())

	for _, tm := range teams.Items() {
		require.Equal(t, before[tm.ID], tm.Players)
	}
	for _, p := range players.Items() {
		require.Same(t, owners[p.ID], p.Team)
	}
}

func TestOpenFailsOnMissingReference(t *testing.T) {
	schemas := newFixtureSchemas(t)
	gateway := newFakeGateway()
	gateway.tables["players"] = append(gateway.tables["players"], Row{"id": int64(13), "team_id": int64(42), "nick": "ghost", "number": int64(0)})

	_, err := Open(context.Background(), Config{Model: schemas.model, Gateway: gateway})

	var refErr *ReferenceResolutionError
	require.True(t, errors.As(err, &refErr), "expected reference error, got %v", err)
	require.Equal(t, "Player", refErr.Entity)
	require.Equal(t, "TeamID", refErr.Field)
	require.Equal(t, "Team", refErr.Target)
	require.Equal(t, int64(42), refErr.Key)
}

func TestOpenReportsFetchFailure(t *testing.T) {
	schemas := newFixtureSchemas(t)
	gateway := newFakeGateway()
	gateway.fetchErr = errDiskFull

	_, err := Open(context.Background(), Config{Model: schemas.model, Gateway: gateway})

	var storageErr *StorageOperationError
	require.True(t, errors.As(err, &storageErr))
	require.Equal(t, "fetch", storageErr.Operation)
	require.ErrorIs(t, err, errDiskFull)
}

func TestOpenReportsUndecodableRow(t *testing.T) {
	schemas := newFixtureSchemas(t)
	gateway := newFakeGateway()
	gateway.tables["players"][0]["number"] = "not-a-number"

	_, err := Open(context.Background(), Config{Model: schemas.model, Gateway: gateway})

	var dispatchErr *InternalDispatchError
	require.True(t, errors.As(err, &dispatchErr), "expected dispatch error, got %v", err)
	require.Equal(t, "Player", dispatchErr.Entity)
}

func TestSetOfRejectsForeignSchema(t *testing.T) {
	_, _, dbContext := openFixture(t)
	stranger := NewSchema("Stranger", []Field[team]{
		Column("ID", func(r *team) *int64 { return &r.ID }, PrimaryKey()),
	})

	_, err := SetOf(dbContext, stranger)

	require.ErrorIs(t, err, ErrUnknownEntity)
}
