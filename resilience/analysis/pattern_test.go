package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func seq(base time.Time, offsetsSeconds ...float64) []Failure {
	out := make([]Failure, len(offsetsSeconds))
	for i, o := range offsetsSeconds {
		out[i] = Failure{At: base.Add(time.Duration(o * float64(time.Second)))}
	}
	return out
}

func TestClassify_UnknownBelowTwoFailures(t *testing.T) {
	base := time.Now()
	assert.Equal(t, PatternUnknown, Classify(nil))
	assert.Equal(t, PatternUnknown, Classify(seq(base, 0)))
}

func TestClassify_PersistentForFrequentRegularFailures(t *testing.T) {
	base := time.Now()
	f := seq(base, 0, 1, 2, 3)
	assert.Equal(t, PatternPersistent, Classify(f))
}

func TestClassify_IntermittentForRegularSpacedFailures(t *testing.T) {
	base := time.Now()
	f := seq(base, 0, 10, 20, 30)
	assert.Equal(t, PatternIntermittent, Classify(f))
}

func TestClassify_CascadingForIrregularManyFailures(t *testing.T) {
	base := time.Now()
	f := seq(base, 0, 1, 15, 16, 40)
	assert.Equal(t, PatternCascading, Classify(f))
}

func TestClassify_TransientForIrregularFewFailures(t *testing.T) {
	base := time.Now()
	f := seq(base, 0, 1, 21)
	assert.Equal(t, PatternTransient, Classify(f))
}
