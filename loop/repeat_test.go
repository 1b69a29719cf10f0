package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepeatDetectorSingleCommandCycle(t *testing.T) {
	d := &repeatDetector{}

	assert.Empty(t, d.Observe("cat index.html"))
	assert.Empty(t, d.Observe("cat index.html"))
	warn := d.Observe("cat index.html")
	assert.Contains(t, warn, "repeat")
	assert.Contains(t, warn, "cat index.html")
}

func TestRepeatDetectorTwoCommandCycle(t *testing.T) {
	d := &repeatDetector{}

	var warn string
	for i := 0; i < 3; i++ {
		warn = d.Observe("edit style.css")
		if warn != "" {
			break
		}
		warn = d.Observe("reload preview")
		if warn != "" {
			break
		}
	}
	assert.NotEmpty(t, warn, "a-b-a-b-a-b is a 2-command cycle")
}

func TestRepeatDetectorIgnoresVariedCommands(t *testing.T) {
	d := &repeatDetector{}
	commands := []string{
		"ls", "cat a.html", "edit a.html", "cat b.html",
		"edit b.html", "ls assets", "mv a b", "rm tmp",
	}
	for _, c := range commands {
		assert.Empty(t, d.Observe(c), "command %q", c)
	}
}

func TestRepeatDetectorWindowSlides(t *testing.T) {
	d := &repeatDetector{}
	d.Observe("x")
	d.Observe("x")
	// A different command breaks the run; two more repeats are not enough.
	d.Observe("y")
	assert.Empty(t, d.Observe("x"))
	assert.Empty(t, d.Observe("x"))
}
