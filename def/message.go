package def

type Event string

// Sent by participants.
const (
	EventReady         Event = "ready"
	EventJobDone       Event = "jobDone"
	EventCreateProject Event = "createProject"
	EventRequestUpdate Event = "requestUpdate"
)

// Sent by the coordinator.
const (
	EventUpdateAllProjects     Event = "updateAllProjects"
	EventNewJob                Event = "newJob"
	EventNewANNJob             Event = "newANNJob"
	EventFinalResult           Event = "finalResult"
	EventUpdateWorkers         Event = "updateWorkers"
	EventUpdatePendingProjects Event = "updatePendingProjects"
	EventError                 Event = "error"
)

/*
	Message is the one envelope everything on the wire travels in.
	Exactly which of the payload fields are set depends on `Event`.

	This is a union type in the style of a tagged struct: unused fields
	stay nil and are omitted when encoded.
*/
type Message struct {
	Event       Event           `json:"event"`
	Ready       *ReadyMessage   `json:"ready,omitempty"`
	Job         *Job            `json:"job,omitempty"`
	Options     *ProjectOptions `json:"options,omitempty"`
	Projects    []ProjectStatus `json:"projects,omitempty"`
	Workers     []WorkerStatus  `json:"workers,omitempty"`
	ProjectID   ProjectID       `json:"projectId,omitempty"`
	FinalResult interface{}     `json:"finalResult,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func JobMessage(job *Job) *Message {
	ev := EventNewJob
	if job.ProjectType == ProjectTypeANN {
		ev = EventNewANNJob
	}
	return &Message{Event: ev, Job: job}
}

func ErrorMessage(err error) *Message {
	return &Message{Event: EventError, Error: err.Error()}
}
