package events

import "strconv"

// Record header names set on every published status
const (
	HeaderMessageID = "message-id"
	HeaderSource    = "source"
)

// Status sources
const (
	SourceMock = "mock"
	SourceLive = "live"
)

// GenerateStatusKey creates the record key for a status.
// Keying by author keeps one user's statuses on one partition.
func GenerateStatusKey(userID uint64) string {
	return strconv.FormatUint(userID, 10)
}
