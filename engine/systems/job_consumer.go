package systems

import "github.com/spaghettifunk/hzdclouds/engine/core"

// JobConsumer lists the job types a thread drains, in priority order: a type
// is only looked at when every type before it has an empty queue. Owned by a
// single thread.
type JobConsumer struct {
	types []JobType
}

func NewJobConsumer(types ...JobType) *JobConsumer {
	for _, t := range types {
		core.Assert(t >= 0 && t < JOB_TYPE_COUNT, "invalid job type %d", t)
	}
	return &JobConsumer{types: append([]JobType(nil), types...)}
}

func (c *JobConsumer) Types() []JobType {
	return append([]JobType(nil), c.types...)
}
