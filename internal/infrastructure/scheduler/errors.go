package scheduler

import "errors"

var (
	// ErrSchedulerRunning is returned when registering a job after Start
	ErrSchedulerRunning = errors.New("scheduler: already running")

	// ErrSchedulerNotRunning is returned when triggering a job on a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler: not running")

	// ErrJobNotFound is returned for an unknown job name
	ErrJobNotFound = errors.New("scheduler: job not found")

	// ErrJobAlreadyRunning is returned when a job is triggered while its previous execution is still running
	ErrJobAlreadyRunning = errors.New("scheduler: job already running")

	// ErrInvalidJob is returned when a job has no name, function or interval
	ErrInvalidJob = errors.New("scheduler: invalid job")
)
