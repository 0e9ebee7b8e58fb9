package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventSystemFireOrder(t *testing.T) {
	es := NewEventSystem()

	var calls []string
	first := &struct{ name string }{"first"}
	second := &struct{ name string }{"second"}

	assert.True(t, es.Register(EVENT_CODE_ASSET_IMPORTED, first, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, "first:"+data.Path)
		return false
	}))
	assert.True(t, es.Register(EVENT_CODE_ASSET_IMPORTED, second, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, "second:"+data.Path)
		return false
	}))

	handled := es.Fire(EVENT_CODE_ASSET_IMPORTED, nil, EventContext{Path: "a.png"})
	assert.False(t, handled)
	assert.Equal(t, []string{"first:a.png", "second:a.png"}, calls)
}

func TestEventSystemDuplicateListener(t *testing.T) {
	es := NewEventSystem()
	listener := &struct{}{}
	fn := func(SystemEventCode, interface{}, interface{}, EventContext) bool { return true }

	assert.True(t, es.Register(EVENT_CODE_BUILD_FINISHED, listener, fn))
	assert.False(t, es.Register(EVENT_CODE_BUILD_FINISHED, listener, fn))
	assert.True(t, es.Fire(EVENT_CODE_BUILD_FINISHED, nil, EventContext{}))

	assert.True(t, es.Unregister(EVENT_CODE_BUILD_FINISHED, listener))
	assert.False(t, es.Unregister(EVENT_CODE_BUILD_FINISHED, listener))
	assert.False(t, es.Fire(EVENT_CODE_BUILD_FINISHED, nil, EventContext{}))
}

func TestEventSystemHandledStopsPropagation(t *testing.T) {
	es := NewEventSystem()
	reached := false
	es.Register(EVENT_CODE_IMPORT_FINISHED, nil, func(SystemEventCode, interface{}, interface{}, EventContext) bool { return true })
	es.Register(EVENT_CODE_IMPORT_FINISHED, nil, func(SystemEventCode, interface{}, interface{}, EventContext) bool {
		reached = true
		return false
	})

	assert.True(t, es.Fire(EVENT_CODE_IMPORT_FINISHED, nil, EventContext{}))
	assert.False(t, reached)
}
