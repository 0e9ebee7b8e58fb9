package core

import (
	"sync"
	"time"
)

const AVG_COUNT uint8 = 30

// Metrics tracks pipeline throughput. Conversion times are averaged over the
// last AVG_COUNT conversions.
type Metrics struct {
	mu sync.Mutex

	convAVGCounter uint8
	convTimes      [AVG_COUNT]time.Duration
	convSamples    uint8

	Converted  int
	Failed     int
	Builds     int
	BuildFails int
	LastBuild  time.Duration
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) ConversionDone(elapsed time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		m.Converted++
	} else {
		m.Failed++
	}
	m.convTimes[m.convAVGCounter] = elapsed
	m.convAVGCounter++
	m.convAVGCounter %= AVG_COUNT
	if m.convSamples < AVG_COUNT {
		m.convSamples++
	}
}

func (m *Metrics) BuildDone(elapsed time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Builds++
	if !success {
		m.BuildFails++
	}
	m.LastBuild = elapsed
}

// AverageConversion returns the mean of the recorded conversion times.
func (m *Metrics) AverageConversion() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.convSamples == 0 {
		return 0
	}
	var total time.Duration
	for i := uint8(0); i < m.convSamples; i++ {
		total += m.convTimes[i]
	}
	return total / time.Duration(m.convSamples)
}

func (m *Metrics) Counts() (converted, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Converted, m.Failed
}
