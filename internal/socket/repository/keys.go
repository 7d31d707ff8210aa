package repository

import "fmt"

// redis key layout
//
//	chat:online:{user}          set of live connection ids
//	chat:room:{room}:members    set of member user ids
//	chat:user:{user}:rooms      set of room ids the user belongs to
//	chat:mailbox:{room}:{user}  list of pending message payloads (oldest first)

func onlineKey(userID string) string {
	return fmt.Sprintf("chat:online:%s", userID)
}

func roomMembersKey(roomID string) string {
	return fmt.Sprintf("chat:room:%s:members", roomID)
}

func userRoomsKey(userID string) string {
	return fmt.Sprintf("chat:user:%s:rooms", userID)
}

func mailboxKey(roomID, userID string) string {
	return fmt.Sprintf("chat:mailbox:%s:%s", roomID, userID)
}
