package recording

import (
	"bytes"
	"encoding/json"
)

// rrweb event type for custom events emitted by the tracker.
const customFrameType = 5

// frame is the part of an rrweb event the reconstructor reads. Everything
// else is stored untouched.
type frame struct {
	Type      any             `json:"type"`
	Timestamp float64         `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// decodeFrame never fails: frames that are not objects, or whose fields
// have unexpected types, read as the zero frame.
func decodeFrame(raw json.RawMessage) frame {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		var loose struct {
			Type any             `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if json.Unmarshal(raw, &loose) == nil {
			f.Type, f.Data = loose.Type, loose.Data
		}
	}
	return f
}

func (f frame) isCustom() bool {
	n, ok := f.Type.(float64)
	return ok && n == customFrameType
}

func (f frame) mentions(marker string) bool {
	return f.isCustom() && bytes.Contains(f.Data, []byte(marker))
}

// durationSeconds is the span between the first and last stored frames, in
// whole seconds truncated toward zero. It follows storage order, not time
// order, so a late fragment carrying earlier timestamps can make it shrink or
// go negative.
func durationSeconds(events []json.RawMessage) int64 {
	if len(events) == 0 {
		return 0
	}
	first := decodeFrame(events[0]).Timestamp
	last := decodeFrame(events[len(events)-1]).Timestamp
	return int64((last - first) / 1000)
}
