package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyEmptyDescription(t *testing.T) {
	d := Classify("", nil, nil)
	assert.Equal(t, CategoryGeneral, d.Category)
	assert.LessOrEqual(t, d.Confidence, 0.5)
	assert.True(t, d.RequiresContext)
}

func TestClassifyFileOps(t *testing.T) {
	d := Classify("read config.yaml", nil, nil)
	assert.Equal(t, CategoryFileOps, d.Category)
	assert.Equal(t, StrategyMCPOnly, d.Strategy)
	assert.LessOrEqual(t, d.EstimatedComplexity, 2)
	assert.False(t, d.RequiresApproval)
}

func TestClassifyDestructiveRequiresApproval(t *testing.T) {
	d := Classify("delete all files in /etc", nil, nil)
	assert.Equal(t, CategoryFileOps, d.Category)
	assert.True(t, d.RequiresApproval)
}

func TestClassifyHybridResearchImplement(t *testing.T) {
	d := Classify("research async best practices and implement an example", nil, nil)
	assert.Contains(t, []Category{CategoryHybrid, CategoryResearch}, d.Category)
}

func TestSuggestedToolsCappedAtFive(t *testing.T) {
	d := Classify("read this file and write that other file then move it and rename it and copy it and delete it", nil, nil)
	assert.LessOrEqual(t, len(d.SuggestedTools), 5)
}

func TestConfidenceClampedToRange(t *testing.T) {
	d := Classify("file file file file file file file file file file file file file file file file file file file file file file", nil, nil)
	assert.GreaterOrEqual(t, d.Confidence, 0.1)
	assert.LessOrEqual(t, d.Confidence, 1.0)
}

func TestShortDescriptionLowersConfidence(t *testing.T) {
	short := Classify("read file", nil, nil)
	long := Classify("please carefully read the entire configuration file and summarize every important setting within it", nil, nil)
	assert.Less(t, short.Confidence-0.1, long.Confidence)
}
