package service

import "github.com/riverqueue/river"

// IndexingQueueName is the queue background indexing jobs run on.
const IndexingQueueName = "photo_indexing"

// PhotoIndexArgs are the arguments for a background photo indexing job. The
// photo bytes are fetched from object storage by source key at run time.
type PhotoIndexArgs struct {
	PhotoID   string `json:"photo_id"`
	SessionID string `json:"session_id"`
	SourceKey string `json:"source_key"`
}

func (PhotoIndexArgs) Kind() string { return "photo_index" }

func (PhotoIndexArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: IndexingQueueName}
}
