package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAverageConversion(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, time.Duration(0), m.AverageConversion())

	m.ConversionDone(10*time.Millisecond, true)
	m.ConversionDone(30*time.Millisecond, false)

	assert.Equal(t, 20*time.Millisecond, m.AverageConversion())
	converted, failed := m.Counts()
	assert.Equal(t, 1, converted)
	assert.Equal(t, 1, failed)
}

func TestResourceID(t *testing.T) {
	id := NewResourceID()
	assert.True(t, IsResourceID(id))
	assert.True(t, IsResourceID("{"+id+"}"))
	assert.False(t, IsResourceID("index.yaml"))
}
