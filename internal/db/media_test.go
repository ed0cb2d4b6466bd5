package db

import (
	"errors"
	"testing"

	"github.com/ALT-F4-LLC/porter/internal/model"
)

func TestCreateAndGetMedia(t *testing.T) {
	conn := mustInit(t)

	m := &model.Media{
		URL:        "https://cdn.example.com/a.png",
		Filename:   "a.png",
		StorageKey: "2024/01/a.png",
		Hash:       "abc123",
		Alt:        "front",
		MimeType:   "image/png",
		Size:       2048,
	}
	id, err := CreateMedia(conn, m)
	if err != nil {
		t.Fatalf("CreateMedia: %v", err)
	}

	got, err := GetMedia(conn, id)
	if err != nil {
		t.Fatalf("GetMedia: %v", err)
	}
	if got.Hash != "abc123" || got.StorageKey != "2024/01/a.png" || got.Size != 2048 {
		t.Errorf("got %+v", got)
	}

	if _, err := GetMedia(conn, id+1); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFindMediaByHash(t *testing.T) {
	conn := mustInit(t)

	first, _ := CreateMedia(conn, &model.Media{Filename: "a.png", Hash: "h1"})
	CreateMedia(conn, &model.Media{Filename: "b.png", Hash: "h1"})

	got, err := FindMediaByHash(conn, "h1")
	if err != nil {
		t.Fatalf("FindMediaByHash: %v", err)
	}
	if got != first {
		t.Errorf("id = %d, want oldest %d", got, first)
	}

	for _, h := range []string{"", "nope"} {
		if _, err := FindMediaByHash(conn, h); !errors.Is(err, ErrNotFound) {
			t.Errorf("hash %q: err = %v, want ErrNotFound", h, err)
		}
	}
}

func TestSetMediaHash(t *testing.T) {
	conn := mustInit(t)

	id, _ := CreateMedia(conn, &model.Media{Filename: "a.png"})
	if err := SetMediaHash(conn, id, "later"); err != nil {
		t.Fatalf("SetMediaHash: %v", err)
	}
	got, err := FindMediaByHash(conn, "later")
	if err != nil || got != id {
		t.Errorf("FindMediaByHash = %d, %v; want %d", got, err, id)
	}

	if err := SetMediaHash(conn, 999, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	n, err := CountMedia(conn)
	if err != nil || n != 1 {
		t.Errorf("CountMedia = %d, %v; want 1", n, err)
	}
}
