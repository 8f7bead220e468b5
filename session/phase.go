package session

// Phase is the active step of the session workflow.
type Phase string

const (
	Idle       Phase = "idle"
	Scanning   Phase = "scanning"
	Localizing Phase = "localizing"
	InSession  Phase = "in_session"
)

// Phases lists every phase in declaration order.
var Phases = []Phase{Idle, Scanning, Localizing, InSession}

func (p Phase) String() string { return string(p) }

// Control names a user control whose interactability the session drives.
type Control string

const (
	ControlCreate Control = "create"
	ControlLoad   Control = "load"
	ControlRetry  Control = "retry"
	ControlPlace  Control = "place"
	ControlSave   Control = "save"
	ControlDelete Control = "delete"
)

// Source identifies an asynchronous engine event stream.
type Source string

const (
	SourceMapping  Source = "mapping"
	SourceTracking Source = "tracking"
)

// machine event names
const (
	evCreate          = "create"
	evLoad            = "load"
	evMappingComplete = "mapping_complete"
	evTrackingStatus  = "tracking_status"
	evExit            = "exit"
)
