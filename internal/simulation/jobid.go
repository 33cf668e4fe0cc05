// Package simulation is a peer implementation of the video-generation
// provider for use when no live credentials are configured. Completion time
// is encoded inside the job id itself, so status checks can be answered by
// any server instance with no shared state: the backend is purely a function
// of (job id, current time).
package simulation

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// jobIDPrefix tags simulated job ids. Anything without the tag is not ours.
const jobIDPrefix = "sim-"

var ErrJobNotFound = errors.New("simulated job not found")

// EncodeJobID embeds the ready-at timestamp (unix milliseconds) in a tagged
// job id string.
func EncodeJobID(readyAt time.Time) string {
	return jobIDPrefix + strconv.FormatInt(readyAt.UnixMilli(), 10)
}

// DecodeJobID recovers the ready-at timestamp from a simulated job id.
// Untagged or undecodable ids report ErrJobNotFound.
func DecodeJobID(jobID string) (time.Time, error) {
	raw, ok := strings.CutPrefix(jobID, jobIDPrefix)
	if !ok {
		return time.Time{}, ErrJobNotFound
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, ErrJobNotFound
	}
	return time.UnixMilli(millis).UTC(), nil
}
