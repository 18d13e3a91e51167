package domain

// RoomKeySeparator joins the two usernames of a pairwise room.
const RoomKeySeparator = " <-> "

// RoomKey derives the canonical key for the room shared by two users. The
// usernames are sorted in codepoint order before joining, so
// RoomKey(a, b) == RoomKey(b, a) for any pair. Empty usernames are a caller
// error: they must be rejected before dispatch reaches this point.
func RoomKey(userA, userB string) (string, error) {
	if userA == "" || userB == "" {
		return "", ErrInvalidInput
	}
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + RoomKeySeparator + userB, nil
}
