package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestStartPlainWriter(t *testing.T) {
	var buf bytes.Buffer

	ind := Start(&buf, "Loading open PRs")
	ind.Succeed()
	ind.Fail()

	assert.Equal(t, "Loading open PRs\n", buf.String())
}

func TestModelFinish(t *testing.T) {
	r := lipgloss.NewRenderer(&bytes.Buffer{})
	m := newModel(r, "Checking PRs")

	assert.True(t, strings.HasSuffix(m.View(), " Checking PRs"))

	next, cmd := m.Update(finishMsg{ok: true})
	assert.NotNil(t, cmd)
	assert.Equal(t, "✔ Checking PRs\n", next.View())

	failed, _ := m.Update(finishMsg{ok: false})
	assert.Equal(t, "✖ Checking PRs\n", failed.View())
}

func TestModelIgnoresTicksAfterFinish(t *testing.T) {
	r := lipgloss.NewRenderer(&bytes.Buffer{})
	m := newModel(r, "x")

	finished, _ := m.Update(finishMsg{ok: true})
	_, cmd := finished.Update(m.spinner.Tick())

	assert.Nil(t, cmd)
}
