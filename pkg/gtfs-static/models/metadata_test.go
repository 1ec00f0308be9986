package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRemoteFile(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string
		wantDate string
		wantErr  bool
	}{
		{name: "typed", input: "toulouse_stops_20240501.json", wantType: "stops", wantDate: "20240501"},
		{name: "nested path", input: "toulouse/toulouse_trips_20240102.json", wantType: "trips", wantDate: "20240102"},
		{name: "untyped", input: "toulouse_20240501.json", wantType: "", wantDate: "20240501"},
		{name: "empty type", input: "toulouse__20240501.json", wantType: "", wantDate: "20240501"},
		{name: "prefix and type only", input: "toulouse_stops.json", wantErr: true},
		{name: "wrong prefix", input: "sydney_stops_20240501.json", wantErr: true},
		{name: "bad date", input: "toulouse_stops_2024050.json", wantErr: true},
		{name: "not json", input: "toulouse_stops_20240501.zip", wantErr: true},
		{name: "prefix only", input: "toulouse.json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rf, err := ParseRemoteFile(tt.input, "toulouse")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, rf.FileType)
			assert.Equal(t, tt.wantDate, rf.Date.String())
			assert.Equal(t, "toulouse", rf.Prefix)
		})
	}
}

func TestFileDateOnOrBefore(t *testing.T) {
	last := MustFileDate("20240101")

	assert.True(t, MustFileDate("20240101").OnOrBefore(last))
	assert.True(t, MustFileDate("20231231").OnOrBefore(last))
	assert.False(t, MustFileDate("20240102").OnOrBefore(last))
}

func TestFileDateJSON(t *testing.T) {
	var c struct {
		Date *FileDate `json:"gtfsDownloadDate"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"gtfsDownloadDate":"20240501"}`), &c))
	require.NotNil(t, c.Date)
	assert.Equal(t, "20240501", c.Date.String())

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"gtfsDownloadDate":"20240501"}`, string(out))
}
