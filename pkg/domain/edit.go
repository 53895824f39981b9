package domain

import "time"

// Keys of the fields every data node edit record carries. Downstream
// readers look these up by name.
const (
	EditJobIDKey     = "job_id"
	EditTimestampKey = "timestamp"
)

// Edit is one entry of a data node's edit history.
type Edit map[string]any

// NewJobEdit builds the edit record written when a job produced the node.
func NewJobEdit(jobID string, at time.Time) Edit {
	return Edit{EditJobIDKey: jobID, EditTimestampKey: at}
}

// JobID returns the producing job identifier, if any.
func (e Edit) JobID() (string, bool) {
	id, ok := e[EditJobIDKey].(string)
	return id, ok
}

// Timestamp returns the edit time. Values decoded from JSON arrive as
// RFC 3339 strings and are parsed.
func (e Edit) Timestamp() (time.Time, bool) {
	switch v := e[EditTimestampKey].(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	default:
		return time.Time{}, false
	}
}

// Clone returns a shallow copy of the record.
func (e Edit) Clone() Edit {
	if e == nil {
		return nil
	}
	cp := make(Edit, len(e))
	for k, v := range e {
		cp[k] = v
	}
	return cp
}
