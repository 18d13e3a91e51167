package domain

import (
	"errors"
	"testing"
)

func TestRoomKey_SortsParticipants(t *testing.T) {
	key, err := RoomKey("bob", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "alice <-> bob" {
		t.Errorf("expected 'alice <-> bob', got %q", key)
	}
}

func TestRoomKey_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"Zed", "anna"},
		{"user_1", "user_2"},
	}

	for _, pair := range pairs {
		forward, err := RoomKey(pair[0], pair[1])
		if err != nil {
			t.Fatalf("RoomKey(%q, %q): %v", pair[0], pair[1], err)
		}
		reverse, err := RoomKey(pair[1], pair[0])
		if err != nil {
			t.Fatalf("RoomKey(%q, %q): %v", pair[1], pair[0], err)
		}
		if forward != reverse {
			t.Errorf("RoomKey not symmetric: %q vs %q", forward, reverse)
		}
	}
}

func TestRoomKey_SelfConversation(t *testing.T) {
	key, err := RoomKey("alice", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "alice <-> alice" {
		t.Errorf("expected 'alice <-> alice', got %q", key)
	}
}

func TestRoomKey_EmptyParticipant(t *testing.T) {
	if _, err := RoomKey("", "bob"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty first participant, got %v", err)
	}
	if _, err := RoomKey("alice", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty second participant, got %v", err)
	}
}

func TestRoomKey_CaseSensitiveOrdering(t *testing.T) {
	// Ordering is by code point, so uppercase sorts before lowercase
	key, err := RoomKey("alice", "Bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "Bob <-> alice" {
		t.Errorf("expected 'Bob <-> alice', got %q", key)
	}
}

func TestContentType_Valid(t *testing.T) {
	for _, ct := range []ContentType{ContentTypeText, ContentTypeImage, ContentTypeVideo, ContentTypeLink} {
		if !ct.Valid() {
			t.Errorf("expected %q to be valid", ct)
		}
	}
	if ContentType("AUDIO").Valid() {
		t.Error("expected unknown content type to be invalid")
	}
}
