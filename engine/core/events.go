package core

import "sync"

// EventContext carries the payload of a pipeline event.
type EventContext struct {
	// Source path of the asset, when the event concerns one.
	Path string
	// Resource identifier, when the event concerns one.
	UUID string
	// Name of the builder or platform that raised the event.
	Name string
	// Process exit code for build events.
	ExitCode int
	// Whether the operation behind the event succeeded.
	Success bool
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// An asset has been converted and registered.
	/* Context usage:
	 * Path = absolute source path
	 * UUID = destination identifier
	 */
	EVENT_CODE_ASSET_IMPORTED SystemEventCode = 0x01

	// The import queue has been drained.
	EVENT_CODE_IMPORT_FINISHED SystemEventCode = 0x02

	// A native build finished.
	/* Context usage:
	 * Name = builder name
	 * ExitCode = toolchain exit code
	 * Success = ExitCode == 0
	 */
	EVENT_CODE_BUILD_FINISHED SystemEventCode = 0x03

	// Import and every build it triggered are done.
	EVENT_CODE_PIPELINE_FINISHED SystemEventCode = 0x04

	// An asset was removed by the user.
	/* Context usage:
	 * Path = absolute source path
	 * UUID = identifier that was unregistered
	 */
	EVENT_CODE_ASSET_REMOVED SystemEventCode = 0x05

	// The current platform changed.
	/* Context usage:
	 * Name = platform name
	 */
	EVENT_CODE_PLATFORM_CHANGED SystemEventCode = 0x06

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventCodeEntry struct {
	events []*registeredEvent
}

// EventSystem dispatches pipeline notifications synchronously on the caller's
// goroutine. The engine only fires events from its control goroutine.
type EventSystem struct {
	mu         sync.RWMutex
	registered map[SystemEventCode]*eventCodeEntry
}

func NewEventSystem() *EventSystem {
	return &EventSystem{
		registered: make(map[SystemEventCode]*eventCodeEntry),
	}
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener combos will not be registered again and will cause this to return FALSE.
 * @param code The event code to listen for.
 * @param listener A pointer to a listener instance. Can be nil.
 * @param onEvent The callback function to be invoked when the event code is fired.
 * @returns TRUE if the event is successfully registered; otherwise false.
 */
func (es *EventSystem) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if code < 0 || code >= MAX_MESSAGE_CODES || onEvent == nil {
		return false
	}
	es.mu.Lock()
	defer es.mu.Unlock()

	entry, ok := es.registered[code]
	if !ok {
		entry = &eventCodeEntry{}
		es.registered[code] = entry
	}
	if listener != nil {
		for _, e := range entry.events {
			if e.listener == listener {
				return false
			}
		}
	}
	entry.events = append(entry.events, &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns FALSE.
 */
func (es *EventSystem) Unregister(code SystemEventCode, listener interface{}) bool {
	es.mu.Lock()
	defer es.mu.Unlock()

	entry, ok := es.registered[code]
	if !ok || len(entry.events) == 0 {
		return false
	}
	for i, e := range entry.events {
		if e.listener == listener {
			entry.events = append(entry.events[:i], entry.events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * TRUE, the event is considered handled and is not passed on to any more listeners.
 * @returns TRUE if handled, otherwise FALSE.
 */
func (es *EventSystem) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	es.mu.RLock()
	entry, ok := es.registered[code]
	var events []*registeredEvent
	if ok {
		events = append(events, entry.events...)
	}
	es.mu.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}

// Shutdown drops every registration.
func (es *EventSystem) Shutdown() {
	es.mu.Lock()
	es.registered = make(map[SystemEventCode]*eventCodeEntry)
	es.mu.Unlock()
}
