package domain

import "time"

const MaxRoomNameLen = 36

type RoomCode string

// Room is call-room meta. Membership and chat live in the store, not here.
type Room struct {
	Code         RoomCode
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	HostID       ParticipantID
}

func (r *Room) HasPassword() bool { return r.PasswordHash != "" }

// RoomNameFor derives the display label when none was supplied.
func RoomNameFor(creatorName, roomName string) string {
	if roomName == "" {
		roomName = creatorName + "'s Room"
	}
	if len(roomName) > MaxRoomNameLen {
		roomName = roomName[:MaxRoomNameLen]
	}
	return roomName
}
