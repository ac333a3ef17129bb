package matrix

import (
	"testing"

	"github.com/brandlens/brandlens/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBuilder() *Builder {
	return NewBuilder([]string{"openai", "gemini", "perplexity"})
}

func TestBuild_Cardinality(t *testing.T) {
	b := testBuilder()

	tasks, err := b.Build(
		[]string{"Acme", "Umbrella"},
		[]string{"q1", "q2", "q3"},
		[]string{"openai", "gemini"},
	)

	require.NoError(t, err)
	assert.Len(t, tasks, 2*3*2)

	ids := make(map[string]bool)
	for _, tsk := range tasks {
		assert.Equal(t, task.StatusPending, tsk.Status)
		ids[tsk.ID] = true
	}
	assert.Len(t, ids, len(tasks), "every task id must be unique")
}

func TestBuild_EmptyBrands(t *testing.T) {
	_, err := testBuilder().Build(nil, []string{"q1"}, []string{"openai"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "brands", verr.Field)
}

func TestBuild_EmptyQuestions(t *testing.T) {
	_, err := testBuilder().Build([]string{"Acme"}, nil, []string{"openai"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "questions", verr.Field)
}

func TestBuild_EmptyPlatforms(t *testing.T) {
	_, err := testBuilder().Build([]string{"Acme"}, []string{"q1"}, nil)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "platforms", verr.Field)
}

func TestBuild_UnknownPlatform(t *testing.T) {
	_, err := testBuilder().Build([]string{"Acme"}, []string{"q1"}, []string{"openai", "unknown-ai"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "unknown-ai")
}

func TestBuild_DedupesTriples(t *testing.T) {
	tasks, err := testBuilder().Build(
		[]string{"Acme", "Acme"},
		[]string{"q1", "q1"},
		[]string{"openai", "openai"},
	)

	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestBuild_DeterministicOrder(t *testing.T) {
	tasks, err := testBuilder().Build(
		[]string{"Umbrella", "Acme"},
		[]string{"q2", "q1"},
		[]string{"gemini", "openai"},
	)

	require.NoError(t, err)
	require.Len(t, tasks, 8)

	// Brand-major, then question, then platform.
	assert.Equal(t, "Acme", tasks[0].Brand)
	assert.Equal(t, "q1", tasks[0].Question)
	assert.Equal(t, "gemini", tasks[0].Platform)
	assert.Equal(t, "openai", tasks[1].Platform)
	assert.Equal(t, "q2", tasks[2].Question)
	assert.Equal(t, "Umbrella", tasks[4].Brand)
}

func TestBuild_Idempotent(t *testing.T) {
	b := testBuilder()
	brands := []string{"Acme", "Umbrella"}
	questions := []string{"q1", "q2"}
	platforms := []string{"openai", "gemini"}

	first, err := b.Build(brands, questions, platforms)
	require.NoError(t, err)
	second, err := b.Build(brands, questions, platforms)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Brand, second[i].Brand)
		assert.Equal(t, first[i].Question, second[i].Question)
		assert.Equal(t, first[i].Platform, second[i].Platform)
	}
}
