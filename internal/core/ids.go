package core

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"flowcore/pkg/domain"
)

var idPrefixes = map[domain.Kind]string{
	domain.KindScenario:   "SCENARIO",
	domain.KindSequence:   "SEQUENCE",
	domain.KindDataNode:   "DATANODE",
	domain.KindCycle:      "CYCLE",
	domain.KindJob:        "JOB",
	domain.KindTask:       "TASK",
	domain.KindSubmission: "SUBMISSION",
}

// IDPrefix returns the identifier prefix used for kind.
func IDPrefix(kind domain.Kind) string {
	if p, ok := idPrefixes[kind]; ok {
		return p
	}
	return strings.ToUpper(string(kind))
}

// NewID returns PREFIX_<configID>_<uuid>, or PREFIX_<uuid> when configID
// is empty.
func NewID(prefix, configID string) string {
	if configID == "" {
		return prefix + "_" + uuid.NewString()
	}
	return prefix + "_" + configID + "_" + uuid.NewString()
}

// stampNew assigns an id when missing and fills creation defaults.
func stampNew(e domain.Entity, now time.Time) {
	switch v := e.(type) {
	case *domain.Scenario:
		if v.ID == "" {
			v.ID = NewID(IDPrefix(domain.KindScenario), v.ConfigID)
		}
		if v.CreationDate.IsZero() {
			v.CreationDate = now
		}
	case *domain.Sequence:
		if v.ID == "" {
			v.ID = NewID(IDPrefix(domain.KindSequence), "")
		}
	case *domain.Task:
		if v.ID == "" {
			v.ID = NewID(IDPrefix(domain.KindTask), v.ConfigID)
		}
	case *domain.DataNode:
		if v.ID == "" {
			v.ID = NewID(IDPrefix(domain.KindDataNode), v.ConfigID)
		}
		if v.Storage == "" {
			v.Storage = domain.StorageInMemory
		}
	case *domain.Cycle:
		if v.ID == "" {
			v.ID = NewID(IDPrefix(domain.KindCycle), string(v.Frequency))
		}
		if v.CreationDate.IsZero() {
			v.CreationDate = now
		}
	case *domain.Job:
		if v.ID == "" {
			v.ID = NewID(IDPrefix(domain.KindJob), "")
		}
		if v.Status == "" {
			v.Status = domain.StatusSubmitted
		}
		if v.Stacktrace == nil {
			v.Stacktrace = []string{}
		}
		if v.CreationDate.IsZero() {
			v.CreationDate = now
		}
	case *domain.Submission:
		if v.ID == "" {
			v.ID = NewID(IDPrefix(domain.KindSubmission), "")
		}
		if v.Status == "" {
			v.Status = domain.SubmissionSubmitted
		}
		if v.CreationDate.IsZero() {
			v.CreationDate = now
		}
	}
	domain.EnsureProps(e)
}
