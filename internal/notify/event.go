// Package notify announces committed renders to downstream consumers. Each
// event is hash-chained per image so a consumer can detect gaps or
// tampering in the announcement stream.
package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Event announces one published collage.
type Event struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	Render   RenderInfo   `json:"render"`
	Producer ProducerInfo `json:"producer"`
	Chain    ChainInfo    `json:"chain"`
}

// RenderInfo identifies the published artifact.
type RenderInfo struct {
	Image      string `json:"image"`
	Date       string `json:"date"`
	Checksum   string `json:"checksum"`
	StorageURI string `json:"storage_uri"`
	ByteSize   int64  `json:"byte_size"`
	Width      int    `json:"width"`
}

// ProducerInfo identifies the software that produced the artifact.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha"`
}

// ChainInfo links consecutive events for one image.
type ChainInfo struct {
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
}

// ChainKey returns the chain this event belongs to. Events chain per image
// so each image's history can be verified in isolation.
func (r RenderInfo) ChainKey() string {
	return r.Image
}

// ComputeEventHash hashes the canonical JSON of the event with the
// event_hash field blanked.
func ComputeEventHash(evt *Event) string {
	evtCopy := *evt
	evtCopy.Chain.EventHash = ""

	canonical, err := json.Marshal(evtCopy)
	if err != nil {
		return ""
	}

	hash := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// GenerateEventID creates a unique event ID.
func GenerateEventID() string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
	return "evt_" + hex.EncodeToString(hash[:8])
}
