package proto

import "github.com/mtiwari1/gophermedia/internal/media"

// RegisterMediaRequest records a file that is already in storage.
// Category is derived from MIMEType by the server.
type RegisterMediaRequest struct {
	ID           string `json:"id"`
	StoragePath  string `json:"storage_path"`
	MIMEType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	OriginalName string `json:"original_name,omitempty"`
	Checksum     string `json:"checksum,omitempty"`
	// Process queues a processing pass after registration.
	Process bool `json:"process,omitempty"`
}

type GetMediaRequest struct {
	ID string `json:"id"`
}

type ListMediaRequest struct {
	Category string `json:"category,omitempty"`
	Status   string `json:"status,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ProcessMediaRequest runs a pass. With Wait the reply carries the outcome;
// otherwise the pass is queued.
type ProcessMediaRequest struct {
	ID   string `json:"id"`
	Wait bool   `json:"wait,omitempty"`
}

type UpdateStatusRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type MediaReply struct {
	Media *media.Record `json:"media"`
}

type ListMediaReply struct {
	Media []*media.Record `json:"media"`
}

type ProcessMediaReply struct {
	ID     string        `json:"id"`
	Queued bool          `json:"queued"`
	Media  *media.Record `json:"media,omitempty"`
}
