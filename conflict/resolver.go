// Package conflict decides, for a remote shape edit arriving against a
// known local shape state, whether to keep the local value, apply the
// remote value outright, or merge the two on a per-property basis.
// The event store calls Resolve when an incoming shape edit carries
// the client's vector clock; edits without one skip the resolver and
// fall back to the store's own time-window heuristic.
package conflict

import "canvashub/vectorclock"

// Action is the resolver's verdict for a single incoming edit.
type Action string

const (
	KeepLocal   Action = "KEEP_LOCAL"
	ApplyRemote Action = "APPLY_REMOTE"
	Merge       Action = "MERGE"
)

// ShapeState is the minimal view of a shape's causal state the
// resolver needs: its current properties, per-property last-touch
// timestamps, and vector clock.
type ShapeState struct {
	Properties         map[string]interface{}
	PropertyTimestamps map[string]int64
	VectorClock        vectorclock.Clock
}

// Result carries the verdict plus, for MERGE, the resolved properties
// and the clock the local side should adopt afterward.
type Result struct {
	Action             Action
	Properties         map[string]interface{}
	PropertyTimestamps map[string]int64
	VectorClock        vectorclock.Clock
}

// Resolve implements spec §4.C: compare the remote edit's vector clock
// against the local shape's, and either pick a side outright or merge
// property-by-property using the later timestamp, remote winning ties.
func Resolve(local ShapeState, remoteProps map[string]interface{}, remoteTimestamps map[string]int64, remoteClock vectorclock.Clock) Result {
	switch {
	case remoteClock.HappensBefore(local.VectorClock):
		return Result{
			Action:             KeepLocal,
			Properties:         local.Properties,
			PropertyTimestamps: local.PropertyTimestamps,
			VectorClock:        local.VectorClock,
		}

	case local.VectorClock.HappensBefore(remoteClock):
		props := make(map[string]interface{}, len(local.Properties)+len(remoteProps))
		for k, v := range local.Properties {
			props[k] = v
		}
		for k, v := range remoteProps {
			props[k] = v
		}
		timestamps := make(map[string]int64, len(local.PropertyTimestamps)+len(remoteTimestamps))
		for k, v := range local.PropertyTimestamps {
			timestamps[k] = v
		}
		for k, v := range remoteTimestamps {
			timestamps[k] = v
		}
		merged := local.VectorClock.Clone()
		merged.MergeInto(remoteClock)
		return Result{
			Action:             ApplyRemote,
			Properties:         props,
			PropertyTimestamps: timestamps,
			VectorClock:        merged,
		}

	default:
		return mergeConcurrent(local, remoteProps, remoteTimestamps, remoteClock)
	}
}

// mergeConcurrent implements the concurrent branch: for every key
// touched on either side, the value with the greater property
// timestamp wins; on a tie the remote value wins because the server
// is the designated tie-breaker.
func mergeConcurrent(local ShapeState, remoteProps map[string]interface{}, remoteTimestamps map[string]int64, remoteClock vectorclock.Clock) Result {
	props := make(map[string]interface{}, len(local.Properties))
	for k, v := range local.Properties {
		props[k] = v
	}

	timestamps := make(map[string]int64, len(local.PropertyTimestamps))
	for k, v := range local.PropertyTimestamps {
		timestamps[k] = v
	}

	touched := make(map[string]bool)
	for k := range local.PropertyTimestamps {
		touched[k] = true
	}
	for k := range remoteTimestamps {
		touched[k] = true
	}

	for key := range touched {
		localTS, localTouched := local.PropertyTimestamps[key]
		remoteTS, remoteTouched := remoteTimestamps[key]

		switch {
		case remoteTouched && !localTouched:
			applyRemoteKey(props, timestamps, remoteProps, key, remoteTS)
		case localTouched && !remoteTouched:
			// local already in props/timestamps; nothing to do
		case remoteTS >= localTS:
			// tie or remote-later: remote wins
			applyRemoteKey(props, timestamps, remoteProps, key, remoteTS)
		default:
			// local strictly later: keep local value, already present
		}
	}

	merged := local.VectorClock.Clone()
	merged.MergeInto(remoteClock)

	return Result{
		Action:             Merge,
		Properties:         props,
		PropertyTimestamps: timestamps,
		VectorClock:        merged,
	}
}

func applyRemoteKey(props map[string]interface{}, timestamps map[string]int64, remoteProps map[string]interface{}, key string, ts int64) {
	if v, ok := remoteProps[key]; ok {
		props[key] = v
	}
	timestamps[key] = ts
}
