package types

import (
	"sort"
	"strings"
)

// EventName is a namespaced event identifier of the form "<service>:<verb>".
type EventName string

// Service names that own a namespace in the event catalog.
const (
	ServiceCSPlayer = "csPlayer"
	ServiceAirflow  = "airflow"
	ServiceGrafana  = "grafana"
	ServiceSystem   = "system"
	ServiceApp      = "app"
)

// Sender labels that are not frame service names.
const (
	// SenderDashboard tags events that originate in the host page.
	SenderDashboard = "dashboard"
	// SenderTestStub tags events received on the legacy direct-message path.
	SenderTestStub = "test-stub"
)

// NamespaceSeparator splits the service prefix from the verb.
const NamespaceSeparator = ":"

// csPlayer events.
const (
	// Parent -> csPlayer commands.
	EventCSPlayerFilterChanged  EventName = "csPlayer:filterChanged"
	EventCSPlayerRefreshTasks   EventName = "csPlayer:refreshTasks"
	EventCSPlayerExecuteCommand EventName = "csPlayer:executeCommand"

	// csPlayer -> parent notifications.
	EventCSPlayerPackageChanged EventName = "csPlayer:packageChanged"
	EventCSPlayerTaskExecuted   EventName = "csPlayer:taskExecuted"
	EventCSPlayerTaskFailed     EventName = "csPlayer:taskFailed"
	EventCSPlayerStatusUpdated  EventName = "csPlayer:statusUpdated"
)

// Airflow events.
const (
	EventAirflowTriggerDag       EventName = "airflow:triggerDag"
	EventAirflowPauseDag         EventName = "airflow:pauseDag"
	EventAirflowDagTriggered     EventName = "airflow:dagTriggered"
	EventAirflowDagStatusChanged EventName = "airflow:dagStatusChanged"
)

// Grafana events.
const (
	EventGrafanaUpdateDashboard EventName = "grafana:updateDashboard"
	EventGrafanaUpdateTimeRange EventName = "grafana:updateTimeRange"
	EventGrafanaPanelDataLoaded EventName = "grafana:panelDataLoaded"
)

// System events.
const (
	EventFrameReady EventName = "system:iframeReady"
	EventFrameError EventName = "system:iframeError"
)

// Application events carrying free-text commands from a page into a frame.
const (
	EventAppCommandSent     EventName = "app:commandSent"
	EventAppCommandReceived EventName = "app:commandReceived"
)

// Category classifies an event by direction.
type Category string

// Category constants.
const (
	// CategoryCommand events flow from the parent page into a frame.
	CategoryCommand Category = "command"
	// CategoryNotification events flow from a frame to the parent page.
	CategoryNotification Category = "notification"
	// CategorySystem events describe frame lifecycle.
	CategorySystem Category = "system"
)

// catalog is the event registry. It is never written after init.
var catalog = map[EventName]Category{
	EventCSPlayerFilterChanged:  CategoryCommand,
	EventCSPlayerRefreshTasks:   CategoryCommand,
	EventCSPlayerExecuteCommand: CategoryCommand,
	EventCSPlayerPackageChanged: CategoryNotification,
	EventCSPlayerTaskExecuted:   CategoryNotification,
	EventCSPlayerTaskFailed:     CategoryNotification,
	EventCSPlayerStatusUpdated:  CategoryNotification,

	EventAirflowTriggerDag:       CategoryCommand,
	EventAirflowPauseDag:         CategoryCommand,
	EventAirflowDagTriggered:     CategoryNotification,
	EventAirflowDagStatusChanged: CategoryNotification,

	EventGrafanaUpdateDashboard: CategoryCommand,
	EventGrafanaUpdateTimeRange: CategoryCommand,
	EventGrafanaPanelDataLoaded: CategoryNotification,

	EventFrameReady: CategorySystem,
	EventFrameError: CategorySystem,

	EventAppCommandSent:     CategoryCommand,
	EventAppCommandReceived: CategoryCommand,
}

// EventInfo describes one registry entry.
type EventInfo struct {
	Name     EventName `json:"name" yaml:"name"`
	Service  string    `json:"service" yaml:"service"`
	Category Category  `json:"category" yaml:"category"`
}

// IsValidEvent reports whether name is in the event registry.
func IsValidEvent(name EventName) bool {
	_, ok := catalog[name]
	return ok
}

// CategoryOf returns the registry category for name.
func CategoryOf(name EventName) (Category, bool) {
	c, ok := catalog[name]
	return c, ok
}

// ServiceOf returns the namespace prefix of name.
// A name without a separator is its own service.
func ServiceOf(name EventName) string {
	service, _, _ := strings.Cut(string(name), NamespaceSeparator)
	return service
}

// Service returns the namespace prefix of e.
func (e EventName) Service() string {
	return ServiceOf(e)
}

// Catalog returns every registered event, sorted by name.
// The returned slice is a copy.
func Catalog() []EventInfo {
	out := make([]EventInfo, 0, len(catalog))
	for name, category := range catalog {
		out = append(out, EventInfo{
			Name:     name,
			Service:  ServiceOf(name),
			Category: category,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EventsForService returns the registered events in a service namespace, sorted.
func EventsForService(service string) []EventName {
	var out []EventName
	for name := range catalog {
		if ServiceOf(name) == service {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
