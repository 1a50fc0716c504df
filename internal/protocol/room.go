package protocol

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"battleforge/internal/sim"
)

// Seat is one player's slot in a room.
type Seat struct {
	PlayerID string
	Team     sim.TeamID
	Ready    bool
	Entity   sim.EntityID
}

// Room is a two-seat match: one authoritative engine plus per-seat state.
type Room struct {
	ID     string
	Engine *sim.Engine
	Seats  map[string]*Seat
	Round  int
}

// SeatsInOrder returns the seats sorted by player ID so every traversal
// is deterministic.
func (r *Room) SeatsInOrder() []*Seat {
	out := make([]*Seat, 0, len(r.Seats))
	for _, s := range r.Seats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// AllReady reports whether both seats are filled and ready.
func (r *Room) AllReady() bool {
	if len(r.Seats) < 2 {
		return false
	}
	for _, s := range r.Seats {
		if !s.Ready {
			return false
		}
	}
	return true
}

// RoomManager owns the room table and player -> room index.
type RoomManager struct {
	log        zerolog.Logger
	rooms      map[string]*Room
	playerRoom map[string]string

	tickRate       int
	battleDuration float64
}

// NewRoomManager creates an empty manager.
func NewRoomManager(log zerolog.Logger, tickRate int, battleDuration float64) *RoomManager {
	return &RoomManager{
		log:            log,
		rooms:          make(map[string]*Room),
		playerRoom:     make(map[string]string),
		tickRate:       tickRate,
		battleDuration: battleDuration,
	}
}

// CreateRoom builds a room with a fresh engine seeded for round 1.
func (m *RoomManager) CreateRoom(level *sim.Level) *Room {
	id := uuid.NewString()
	room := &Room{
		ID: id,
		Engine: sim.NewEngine(sim.Config{
			TickRate:       m.tickRate,
			BattleDuration: m.battleDuration,
			Level:          level,
			Seed:           sim.BattleSeed(id, 1),
			Logger:         m.log.With().Str("room", id).Logger(),
		}),
		Seats: make(map[string]*Seat),
		Round: 1,
	}
	room.Engine.SetPhase(sim.PhaseLobby)
	m.rooms[id] = room
	m.log.Info().Str("room", id).Msg("🏰 room created")
	return room
}

// Join seats a player. The first joiner takes the left side.
func (m *RoomManager) Join(roomID, playerID string) (*Room, error) {
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("unknown room %s", roomID)
	}
	if _, ok := room.Seats[playerID]; ok {
		return room, nil
	}
	if len(room.Seats) >= 2 {
		return nil, fmt.Errorf("room %s is full", roomID)
	}

	team := sim.TeamLeft
	for _, s := range room.Seats {
		if s.Team == sim.TeamLeft {
			team = sim.TeamRight
		}
	}
	entity := room.Engine.CreatePlayerEntity(playerID, team)
	room.Seats[playerID] = &Seat{PlayerID: playerID, Team: team, Entity: entity}
	m.playerRoom[playerID] = roomID
	m.log.Info().Str("room", roomID).Str("player", playerID).Str("team", string(team)).Msg("👤 player seated")

	if len(room.Seats) == 2 {
		room.Engine.SetPhase(sim.PhasePlacement)
		room.Engine.TriggerEvent(sim.EventGameStarted, roomID)
	}
	return room, nil
}

// Leave unseats a player; an empty room is dropped.
func (m *RoomManager) Leave(playerID string) {
	roomID, ok := m.playerRoom[playerID]
	if !ok {
		return
	}
	delete(m.playerRoom, playerID)
	room, ok := m.rooms[roomID]
	if !ok {
		return
	}
	delete(room.Seats, playerID)
	m.log.Info().Str("room", roomID).Str("player", playerID).Msg("👋 player left")
	if len(room.Seats) == 0 {
		delete(m.rooms, roomID)
		m.log.Info().Str("room", roomID).Msg("🗑️ room dropped")
	}
}

// Room returns a room by ID.
func (m *RoomManager) Room(id string) (*Room, bool) {
	r, ok := m.rooms[id]
	return r, ok
}

// RoomFor returns the room a player is seated in.
func (m *RoomManager) RoomFor(playerID string) (*Room, bool) {
	roomID, ok := m.playerRoom[playerID]
	if !ok {
		return nil, false
	}
	return m.Room(roomID)
}

// PlayerRoomID implements the Sender-side lookup.
func (m *RoomManager) PlayerRoomID(playerID string) string {
	return m.playerRoom[playerID]
}

// Rooms returns every room in ID order.
func (m *RoomManager) Rooms() []*Room {
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Room, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.rooms[id])
	}
	return out
}
