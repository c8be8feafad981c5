package def

import (
	"time"

	"go.polydawn.net/cohort/nn"
	"go.polydawn.net/cohort/reconcile"
)

/*
	Job is one unit of work: a piece of data (or, for ANN projects, a
	partition of the training set plus the network to train on it) and a
	slot for the result.

	Everything except `Data` and the ids is stamped on by the project at
	assignment time, so a participant never needs a live reference to the
	project to execute it.
*/
type Job struct {
	JobID       JobID       `json:"jobId"`
	ProjectID   ProjectID   `json:"projectId"`
	ProjectType ProjectType `json:"projectType,omitempty"`
	WorkerID    WorkerID    `json:"workerId,omitempty"`
	JobsLength  int         `json:"jobsLength"`            // number of jobs in the project (or in the epoch, for ANN).
	Data        interface{} `json:"data,omitempty"`
	Result      interface{} `json:"result,omitempty"`
	MapData     string      `json:"mapData,omitempty"`     // name of the registered map transform.
	Failure     string      `json:"failure,omitempty"`     // set by a participant that couldn't execute the job.

	// ANN jobs only.
	Epoch          int                `json:"epoch,omitempty"`
	Generation     int                `json:"generation,omitempty"` // bumped each time an epoch is partitioned again; results of an older cut are stale.
	CohortSize     int                `json:"cohortSize,omitempty"` // number of jobs handed to the same participant in one batch.
	TrainingSet    []nn.Sample        `json:"trainingSet,omitempty"`
	Network        *nn.Network        `json:"network,omitempty"`
	TrainerOptions *nn.TrainerOptions `json:"trainerOptions,omitempty"`
	MergePolicy    reconcile.Policy   `json:"mergePolicy,omitempty"`
	Partial        *reconcile.Partial `json:"partial,omitempty"` // the trained network, on the way back.
	Covers         []JobID            `json:"covers,omitempty"`  // job ids a pre-merged partial stands for.  Empty means just JobID.

	AssignedAt time.Time `json:"-"` // coordinator-side only.
}

func NewJob(data interface{}, id JobID, projectID ProjectID) *Job {
	return &Job{
		JobID:     id,
		ProjectID: projectID,
		Data:      data,
	}
}

/*
	Shallow copy.  The network and training set are shared on purpose:
	every job in an epoch refers to the same snapshot, and nobody
	mutates it in place.
*/
func (j Job) Clone() *Job {
	if j.Covers != nil {
		j.Covers = append([]JobID(nil), j.Covers...)
	}
	return &j
}

type JobKey struct {
	ProjectID ProjectID
	JobID     JobID
}

func (j *Job) Key() JobKey {
	return JobKey{j.ProjectID, j.JobID}
}

/*
	The job ids a result accounts for: `Covers` when a participant
	merged several jobs of a batch before reporting, otherwise just the
	job's own id.
*/
func (j *Job) Covered() []JobID {
	if len(j.Covers) == 0 {
		return []JobID{j.JobID}
	}
	return j.Covers
}
