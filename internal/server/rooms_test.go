package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRooms() *membershipTable {
	return newMembershipTable([]string{"general", "anxiety", "random"})
}

// occupiedRooms returns the rooms that currently contain connID.
func occupiedRooms(t *membershipTable, connID string) []string {
	var occupied []string
	for id := range t.rooms {
		if _, in := t.rooms[id][connID]; in {
			occupied = append(occupied, id)
		}
	}
	return occupied
}

func TestJoinAddsToExactlyOneRoom(t *testing.T) {
	table := testRooms()

	prior, ok := table.join("conn-1", "general")
	require.True(t, ok)
	assert.Empty(t, prior, "first join should vacate nothing")
	assert.Equal(t, []string{"general"}, occupiedRooms(table, "conn-1"))
}

func TestJoinMovesDoesNotDuplicate(t *testing.T) {
	table := testRooms()

	_, ok := table.join("conn-1", "general")
	require.True(t, ok)

	prior, ok := table.join("conn-1", "anxiety")
	require.True(t, ok)
	assert.Equal(t, "general", prior)
	assert.Equal(t, []string{"anxiety"}, occupiedRooms(table, "conn-1"))
}

func TestJoinSameRoomTwice(t *testing.T) {
	table := testRooms()

	_, ok := table.join("conn-1", "general")
	require.True(t, ok)

	prior, ok := table.join("conn-1", "general")
	require.True(t, ok)
	assert.Equal(t, "general", prior)
	assert.Equal(t, []string{"general"}, occupiedRooms(table, "conn-1"))
	assert.Equal(t, 1, table.counts()["general"])
}

func TestJoinUnknownRoomIsNoOp(t *testing.T) {
	table := testRooms()

	_, ok := table.join("conn-1", "general")
	require.True(t, ok)

	prior, ok := table.join("conn-1", "doesNotExist")
	assert.False(t, ok)
	assert.Empty(t, prior)
	assert.Equal(t, []string{"general"}, occupiedRooms(table, "conn-1"),
		"failed join must leave prior membership unchanged")
}

func TestLeave(t *testing.T) {
	table := testRooms()

	table.join("conn-1", "general")
	table.leave("conn-1", "general")
	assert.Empty(t, occupiedRooms(table, "conn-1"))

	// Leaving a room the connection is not in, or an unknown room, is a no-op.
	table.leave("conn-1", "general")
	table.leave("conn-1", "doesNotExist")
}

func TestRemoveEverywhere(t *testing.T) {
	table := testRooms()

	table.join("conn-1", "general")
	table.join("conn-2", "general")

	vacated := table.removeEverywhere("conn-1")
	assert.Equal(t, []string{"general"}, vacated)
	assert.Empty(t, occupiedRooms(table, "conn-1"))
	assert.Equal(t, 1, table.counts()["general"])

	assert.Empty(t, table.removeEverywhere("conn-1"), "repeated removal vacates nothing")
}

func TestRemoveEverywhereSweepsAllRooms(t *testing.T) {
	table := testRooms()

	// Violate the single-room invariant by hand; disconnect cleanup must
	// still clear every room.
	table.rooms["general"]["conn-1"] = struct{}{}
	table.rooms["random"]["conn-1"] = struct{}{}

	vacated := table.removeEverywhere("conn-1")
	assert.ElementsMatch(t, []string{"general", "random"}, vacated)
	assert.Empty(t, occupiedRooms(table, "conn-1"))
}

func TestCountsMatchMemberSets(t *testing.T) {
	table := testRooms()

	table.join("conn-1", "general")
	table.join("conn-2", "general")
	table.join("conn-3", "anxiety")
	table.join("conn-2", "random")
	table.leave("conn-3", "anxiety")
	table.removeEverywhere("conn-1")

	counts := table.counts()
	assert.Len(t, counts, 3, "counts must cover every configured room")
	for id := range table.rooms {
		assert.Equal(t, len(table.rooms[id]), counts[id], "count for %q drifted from member set", id)
	}
	assert.Equal(t, map[string]int{"general": 0, "anxiety": 0, "random": 1}, counts)
}

func TestMembers(t *testing.T) {
	table := testRooms()

	table.join("conn-1", "general")
	table.join("conn-2", "general")

	assert.ElementsMatch(t, []string{"conn-1", "conn-2"}, table.members("general"))
	assert.Empty(t, table.members("anxiety"))
	assert.Nil(t, table.members("doesNotExist"))
}
