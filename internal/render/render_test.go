package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

// A bytes.Buffer is not a terminal, so the renderer emits no escapes.
func plain() *Renderer {
	return New(&bytes.Buffer{})
}

func TestTaskLine(t *testing.T) {
	r := plain()
	task := model.Task{ID: 12, Title: "Buy milk", Priority: model.PriorityHigh, Tags: []string{"home", "errand"}}

	assert.Equal(t, "[ ]    12  Buy milk  ! high  #home #errand", r.TaskLine(task))

	task.Completed = true
	task.Tags = nil
	assert.Equal(t, "[x]    12  Buy milk  ! high", r.TaskLine(task))
}

func TestPriorityBadgeDefaultsToMedium(t *testing.T) {
	r := plain()
	assert.Equal(t, "* medium", r.PriorityBadge(""))
	assert.Equal(t, "- low", r.PriorityBadge(model.PriorityLow))
}

func TestTaskDetailIncludesDescription(t *testing.T) {
	description := "two litres"
	detail := plain().TaskDetail(model.Task{ID: 1, Title: "Buy milk", Description: &description, Priority: model.PriorityMedium})

	assert.Contains(t, detail, "Status:   [ ] pending")
	assert.Contains(t, detail, "Tags:     no tags")
	assert.Contains(t, detail, "Created:  n/a")
	assert.True(t, strings.HasSuffix(detail, "\n\ntwo litres"))
}

func TestWriteListPlaceholders(t *testing.T) {
	r := plain()
	var out bytes.Buffer
	require.NoError(t, r.WriteList(&out, nil, model.Query{}))
	assert.Equal(t, "No tasks yet.\n", out.String())

	out.Reset()
	require.NoError(t, r.WriteList(&out, nil, model.Query{Status: model.StatusCompleted}))
	assert.Equal(t, "No tasks match the current filters.\n", out.String())
}

func TestQuerySummary(t *testing.T) {
	assert.Empty(t, QuerySummary(model.Query{Sort: model.SortRecency}))
	assert.Equal(t, `search "milk", priority high, tag #home, sorted by alphabetical`,
		QuerySummary(model.Query{Search: "milk", Priority: model.PriorityFilterHigh, Tag: "home", Sort: model.SortAlphabetical}))
}
