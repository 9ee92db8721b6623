package systems

/** @brief Describes a type of job. Selects the queue, and so the threads, the job runs on. */
type JobType int

const (
	/**
	 * @brief A general job that does not have any specific thread requirements.
	 * Serviced by the generic worker threads.
	 */
	JOB_TYPE_GENERIC JobType = iota
	/**
	 * @brief A job that must run on the main thread. Only serviced when the main
	 * loop steps its consumer.
	 */
	JOB_TYPE_MAIN
	/**
	 * @brief Jobs using GPU resources. Serviced by the render thread.
	 */
	JOB_TYPE_RENDER

	JOB_TYPE_COUNT
)

func (t JobType) String() string {
	switch t {
	case JOB_TYPE_GENERIC:
		return "generic"
	case JOB_TYPE_MAIN:
		return "main"
	case JOB_TYPE_RENDER:
		return "render"
	}
	return "unknown"
}

/** @brief The lifecycle of a job. Stages only move forward. */
type JobStage uint32

const (
	JOB_STAGE_CREATED JobStage = iota
	/** @brief Dispatched, but some dependency has not finished yet. */
	JOB_STAGE_DISPATCHED
	/** @brief Waiting in its type's queue. */
	JOB_STAGE_ENQUEUED
	JOB_STAGE_RUNNING
	JOB_STAGE_FINISHED
)

func (s JobStage) String() string {
	switch s {
	case JOB_STAGE_CREATED:
		return "created"
	case JOB_STAGE_DISPATCHED:
		return "dispatched"
	case JOB_STAGE_ENQUEUED:
		return "enqueued"
	case JOB_STAGE_RUNNING:
		return "running"
	case JOB_STAGE_FINISHED:
		return "finished"
	}
	return "unknown"
}

/** @brief The work of a job, called once on the consuming thread. */
type JobWork func(job *Job, data interface{})
