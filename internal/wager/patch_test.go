package wager

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/bet-settlement/internal/settlement"
)

func TestPatchRequest_NullVersusAbsent(t *testing.T) {
	var req PatchRequest
	require.NoError(t, json.Unmarshal([]byte(`{"actual_return":null,"notes":"ok","result":"won"}`), &req))

	assert.True(t, req.ActualReturn.Set)
	assert.Nil(t, req.ActualReturn.Value)
	require.True(t, req.Notes.Set)
	assert.Equal(t, "ok", *req.Notes.Value)
	assert.Nil(t, req.Teams)

	p, changes, err := BuildPatch(req)
	require.NoError(t, err)
	assert.True(t, p.SetActualReturn)
	assert.Nil(t, p.ActualReturn)
	require.NotNil(t, p.Result)
	assert.Equal(t, settlement.ResultWon, *p.Result)
	assert.Contains(t, changes, "actual_return")
	assert.Nil(t, changes["actual_return"])
	assert.NotContains(t, changes, "teams")
}

func TestBuildPatch_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", `{}`, "at least one field"},
		{"low odds", `{"odds":1.0}`, "odds"},
		{"zero stake", `{"stake":0}`, "stake"},
		{"bad currency", `{"currency":"euro"}`, "currency"},
		{"unknown status", `{"status":"cancelled"}`, "status"},
		{"unknown result", `{"result":"half_won"}`, "result"},
		{"negative return", `{"actual_return":-5}`, "actual_return"},
		{"short teams", `{"teams":"AB"}`, "teams"},
		{"unknown kind", `{"kind":"system"}`, "kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req PatchRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			_, _, err := BuildPatch(req)
			require.ErrorIs(t, err, ErrInvalidWager)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseListQuery_Defaults(t *testing.T) {
	f, err := ParseListQuery(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, settlement.SortMatchTime, f.Sort)
	assert.False(t, f.Desc)
	assert.Equal(t, DefaultListLimit, f.Limit)
	assert.Zero(t, f.Offset)
	assert.Nil(t, f.From)

	_, err = ParseListQuery(url.Values{"offset": {"-1"}, "limit": {"0"}})
	require.ErrorIs(t, err, ErrInvalidQuery)
	assert.Contains(t, err.Error(), "limit")
	assert.Contains(t, err.Error(), "offset")
}
