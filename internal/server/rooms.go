// Package server maintains the fixed room set and the membership of each
// room.
package server

// membershipTable tracks which connections occupy each configured room. The
// room set is fixed at construction; only membership changes at runtime. A
// connection occupies at most one room at a time: join moves, it never
// duplicates. The table is owned by the hub's event loop and is not safe for
// concurrent use.
type membershipTable struct {
	rooms map[string]map[string]struct{}
}

func newMembershipTable(roomIDs []string) *membershipTable {
	t := &membershipTable{rooms: make(map[string]map[string]struct{}, len(roomIDs))}
	for _, id := range roomIDs {
		t.rooms[id] = make(map[string]struct{})
	}
	return t
}

// join moves a connection into roomID, vacating whichever room it occupied
// before, and returns the vacated room if there was one. Joining an
// unrecognized room is a no-op that leaves prior membership untouched.
func (t *membershipTable) join(connID, roomID string) (prior string, ok bool) {
	members, known := t.rooms[roomID]
	if !known {
		return "", false
	}

	for id, occupants := range t.rooms {
		if _, in := occupants[connID]; in {
			delete(occupants, connID)
			prior = id
		}
	}

	members[connID] = struct{}{}
	return prior, true
}

// leave removes the connection from roomID's member set. No-op when the room
// is unknown or the connection is not a member.
func (t *membershipTable) leave(connID, roomID string) {
	if members, ok := t.rooms[roomID]; ok {
		delete(members, connID)
	}
}

// removeEverywhere clears the connection from every room and returns the
// rooms it actually vacated. The invariant allows at most one occupied room,
// but disconnect cleanup sweeps all of them rather than trusting it.
func (t *membershipTable) removeEverywhere(connID string) []string {
	var vacated []string
	for id, members := range t.rooms {
		if _, in := members[connID]; in {
			delete(members, connID)
			vacated = append(vacated, id)
		}
	}
	return vacated
}

// members returns the connection ids currently in roomID. Unknown rooms
// yield nil.
func (t *membershipTable) members(roomID string) []string {
	occupants, ok := t.rooms[roomID]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(occupants))
	for id := range occupants {
		ids = append(ids, id)
	}
	return ids
}

// counts reports the occupancy of every configured room, computed fresh from
// the member sets on each call.
func (t *membershipTable) counts() map[string]int {
	counts := make(map[string]int, len(t.rooms))
	for id, members := range t.rooms {
		counts[id] = len(members)
	}
	return counts
}
