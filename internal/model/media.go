package model

import "time"

// Media is a stored media asset. Hash is the content digest used to
// deduplicate imports; StorageKey locates the bytes in the blob store.
type Media struct {
	ID          int64
	URL         string
	Filename    string
	StorageKey  string
	Hash        string
	Title       string
	Alt         string
	Caption     string
	Description string
	MimeType    string
	Size        int64
	CreatedAt   time.Time
}
