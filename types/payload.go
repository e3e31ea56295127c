package types

import (
	"encoding/json"
	"fmt"
)

// Payload is implemented by every typed event payload.
// A type switch over Payload covers the whole event catalog.
type Payload interface {
	EventName() EventName
}

// FilterChangedPayload selects an execution unit.
type FilterChangedPayload struct {
	CSXUName string `json:"csxuName"`
}

// PackageChangedPayload selects a package.
type PackageChangedPayload struct {
	PackageName string `json:"packageName"`
}

// RefreshTasksPayload asks csPlayer to reload its task list.
type RefreshTasksPayload struct {
	Scope string `json:"scope,omitempty"`
}

// ExecuteCommandPayload asks csPlayer to run a command line.
type ExecuteCommandPayload struct {
	Command string `json:"command"`
	Target  string `json:"target,omitempty"`
}

// TaskExecutedPayload reports a finished task.
type TaskExecutedPayload struct {
	TaskID   string `json:"taskId"`
	Command  string `json:"command,omitempty"`
	ExitCode int    `json:"exitCode"`
	Output   string `json:"output,omitempty"`
}

// TaskFailedPayload reports a failed task.
type TaskFailedPayload struct {
	TaskID  string `json:"taskId"`
	Command string `json:"command,omitempty"`
	Error   string `json:"error"`
}

// StatusUpdatedPayload reports a csPlayer status change.
type StatusUpdatedPayload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// TriggerDagPayload asks airflow to start a DAG run.
type TriggerDagPayload struct {
	DagID string         `json:"dagId"`
	Conf  map[string]any `json:"conf,omitempty"`
}

// PauseDagPayload pauses or unpauses a DAG.
type PauseDagPayload struct {
	DagID  string `json:"dagId"`
	Paused bool   `json:"paused"`
}

// DagTriggeredPayload reports a started DAG run.
type DagTriggeredPayload struct {
	DagID string `json:"dagId"`
	RunID string `json:"runId"`
}

// DagStatusChangedPayload reports a DAG run state transition.
type DagStatusChangedPayload struct {
	DagID string `json:"dagId"`
	RunID string `json:"runId,omitempty"`
	State string `json:"state"`
}

// UpdateDashboardPayload switches the grafana dashboard.
type UpdateDashboardPayload struct {
	DashboardUID string            `json:"dashboardUid"`
	Variables    map[string]string `json:"variables,omitempty"`
}

// UpdateTimeRangePayload sets the grafana time range.
type UpdateTimeRangePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PanelDataLoadedPayload reports a rendered panel.
type PanelDataLoadedPayload struct {
	DashboardUID string `json:"dashboardUid,omitempty"`
	PanelID      int    `json:"panelId"`
}

// FrameReadyPayload is published once per frame on its first recognised message.
type FrameReadyPayload struct {
	Service string `json:"service"`
}

// FrameErrorPayload reports a frame-level failure.
type FrameErrorPayload struct {
	Service string `json:"service"`
	Message string `json:"message"`
}

// CommandSentPayload is published by a page that wants a command run in a frame.
type CommandSentPayload struct {
	SenderName string `json:"senderName"`
	Command    string `json:"command"`
}

// CommandReceivedPayload is the frame-side form of a forwarded command.
type CommandReceivedPayload struct {
	SenderName string `json:"senderName"`
	Command    string `json:"command"`
}

// RawPayload carries data for an event outside the catalog.
type RawPayload struct {
	Name EventName
	Data any
}

func (FilterChangedPayload) EventName() EventName    { return EventCSPlayerFilterChanged }
func (PackageChangedPayload) EventName() EventName   { return EventCSPlayerPackageChanged }
func (RefreshTasksPayload) EventName() EventName     { return EventCSPlayerRefreshTasks }
func (ExecuteCommandPayload) EventName() EventName   { return EventCSPlayerExecuteCommand }
func (TaskExecutedPayload) EventName() EventName     { return EventCSPlayerTaskExecuted }
func (TaskFailedPayload) EventName() EventName       { return EventCSPlayerTaskFailed }
func (StatusUpdatedPayload) EventName() EventName    { return EventCSPlayerStatusUpdated }
func (TriggerDagPayload) EventName() EventName       { return EventAirflowTriggerDag }
func (PauseDagPayload) EventName() EventName         { return EventAirflowPauseDag }
func (DagTriggeredPayload) EventName() EventName     { return EventAirflowDagTriggered }
func (DagStatusChangedPayload) EventName() EventName { return EventAirflowDagStatusChanged }
func (UpdateDashboardPayload) EventName() EventName  { return EventGrafanaUpdateDashboard }
func (UpdateTimeRangePayload) EventName() EventName  { return EventGrafanaUpdateTimeRange }
func (PanelDataLoadedPayload) EventName() EventName  { return EventGrafanaPanelDataLoaded }
func (FrameReadyPayload) EventName() EventName       { return EventFrameReady }
func (FrameErrorPayload) EventName() EventName       { return EventFrameError }
func (CommandSentPayload) EventName() EventName      { return EventAppCommandSent }
func (CommandReceivedPayload) EventName() EventName  { return EventAppCommandReceived }
func (p RawPayload) EventName() EventName            { return p.Name }

// payloadFactories maps each catalogued event to a constructor for its payload.
var payloadFactories = map[EventName]func() Payload{
	EventCSPlayerFilterChanged:   func() Payload { return &FilterChangedPayload{} },
	EventCSPlayerPackageChanged:  func() Payload { return &PackageChangedPayload{} },
	EventCSPlayerRefreshTasks:    func() Payload { return &RefreshTasksPayload{} },
	EventCSPlayerExecuteCommand:  func() Payload { return &ExecuteCommandPayload{} },
	EventCSPlayerTaskExecuted:    func() Payload { return &TaskExecutedPayload{} },
	EventCSPlayerTaskFailed:      func() Payload { return &TaskFailedPayload{} },
	EventCSPlayerStatusUpdated:   func() Payload { return &StatusUpdatedPayload{} },
	EventAirflowTriggerDag:       func() Payload { return &TriggerDagPayload{} },
	EventAirflowPauseDag:         func() Payload { return &PauseDagPayload{} },
	EventAirflowDagTriggered:     func() Payload { return &DagTriggeredPayload{} },
	EventAirflowDagStatusChanged: func() Payload { return &DagStatusChangedPayload{} },
	EventGrafanaUpdateDashboard:  func() Payload { return &UpdateDashboardPayload{} },
	EventGrafanaUpdateTimeRange:  func() Payload { return &UpdateTimeRangePayload{} },
	EventGrafanaPanelDataLoaded:  func() Payload { return &PanelDataLoadedPayload{} },
	EventFrameReady:              func() Payload { return &FrameReadyPayload{} },
	EventFrameError:              func() Payload { return &FrameErrorPayload{} },
	EventAppCommandSent:          func() Payload { return &CommandSentPayload{} },
	EventAppCommandReceived:      func() Payload { return &CommandReceivedPayload{} },
}

// DecodePayload converts loosely-typed event data into the typed payload for name.
// Data that already is a Payload is returned as is. Events outside the catalog
// decode to RawPayload. The returned payload is a value, never a pointer.
func DecodePayload(name EventName, data any) (Payload, error) {
	factory, ok := payloadFactories[name]
	if !ok {
		return RawPayload{Name: name, Data: data}, nil
	}
	if p, ok := data.(Payload); ok && p.EventName() == name {
		return deref(p), nil
	}

	target := factory()
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", name, err)
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", name, err)
		}
	}
	return deref(target), nil
}

// DecodeAs decodes data into the concrete payload type P.
func DecodeAs[P Payload](data any) (P, error) {
	var zero P
	decoded, err := DecodePayload(zero.EventName(), data)
	if err != nil {
		return zero, err
	}
	p, ok := decoded.(P)
	if !ok {
		return zero, fmt.Errorf("payload for %s has type %T", zero.EventName(), decoded)
	}
	return p, nil
}

// deref returns the value form of a pointer payload.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *FilterChangedPayload:
		return *v
	case *PackageChangedPayload:
		return *v
	case *RefreshTasksPayload:
		return *v
	case *ExecuteCommandPayload:
		return *v
	case *TaskExecutedPayload:
		return *v
	case *TaskFailedPayload:
		return *v
	case *StatusUpdatedPayload:
		return *v
	case *TriggerDagPayload:
		return *v
	case *PauseDagPayload:
		return *v
	case *DagTriggeredPayload:
		return *v
	case *DagStatusChangedPayload:
		return *v
	case *UpdateDashboardPayload:
		return *v
	case *UpdateTimeRangePayload:
		return *v
	case *PanelDataLoadedPayload:
		return *v
	case *FrameReadyPayload:
		return *v
	case *FrameErrorPayload:
		return *v
	case *CommandSentPayload:
		return *v
	case *CommandReceivedPayload:
		return *v
	default:
		return p
	}
}
