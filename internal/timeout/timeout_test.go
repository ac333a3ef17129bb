package timeout

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFor_ShortQuestionUsesBaseline(t *testing.T) {
	c := NewCalculator(DefaultConfig())

	assert.Equal(t, 15*time.Second, c.For("What is the best CRM?", "openai"))
}

func TestFor_PlatformBaselineOverride(t *testing.T) {
	config := DefaultConfig()
	config.Baselines = map[string]time.Duration{"perplexity": 30 * time.Second}
	c := NewCalculator(config)

	assert.Equal(t, 30*time.Second, c.For("short question", "perplexity"))
	assert.Equal(t, 15*time.Second, c.For("short question", "openai"))
}

func TestFor_ScalesWithQuestionLength(t *testing.T) {
	c := NewCalculator(DefaultConfig())

	// 1000 chars: 800 over the 200 threshold, so 15s + floor(800/200)*1s = 19s.
	question := strings.Repeat("a", 1000)
	assert.Equal(t, 19*time.Second, c.For(question, "openai"))
}

func TestFor_PartialBlockDoesNotCount(t *testing.T) {
	c := NewCalculator(DefaultConfig())

	// 399 chars: 199 over the threshold, not a full block.
	assert.Equal(t, 15*time.Second, c.For(strings.Repeat("a", 399), "openai"))
	// 400 chars: exactly one full block over.
	assert.Equal(t, 16*time.Second, c.For(strings.Repeat("a", 400), "openai"))
}

func TestFor_CappedAtMax(t *testing.T) {
	c := NewCalculator(DefaultConfig())

	question := strings.Repeat("a", 100000)
	assert.Equal(t, 90*time.Second, c.For(question, "openai"))
}

func TestNewCalculator_ZeroConfigGetsDefaults(t *testing.T) {
	c := NewCalculator(Config{})

	assert.Equal(t, 15*time.Second, c.For("short", "openai"))
}
