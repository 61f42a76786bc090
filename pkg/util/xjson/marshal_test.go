package xjson

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMessage struct {
	ID         string `json:"id"`
	RetryCount int    `json:"retryCount"`
}

func TestPrettyE(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		contains string
		exact    string
		wantErr  bool
	}{
		{name: "struct", input: testMessage{ID: "msg-1", RetryCount: 2}, contains: `"id": "msg-1"`},
		{name: "map", input: map[string]int{"a": 1}, contains: `"a": 1`},
		{name: "nil", input: nil, exact: "null"},
		{name: "NaN", input: math.NaN(), wantErr: true},
		{name: "channel", input: make(chan int), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PrettyE(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMarshal))
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			if tt.exact != "" {
				assert.Equal(t, tt.exact, got)
			} else {
				assert.Contains(t, got, tt.contains)
			}
		})
	}
}

func TestPretty(t *testing.T) {
	assert.Equal(t, "{\n  \"id\": \"msg-1\",\n  \"retryCount\": 0\n}", Pretty(testMessage{ID: "msg-1"}))
	assert.Contains(t, Pretty(make(chan int)), "<marshal error:")
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testMessage{ID: "a"}, false))
	require.NoError(t, Write(&buf, testMessage{ID: "b", RetryCount: 1}, false))
	assert.Equal(t, "{\"id\":\"a\",\"retryCount\":0}\n{\"id\":\"b\",\"retryCount\":1}\n", buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, map[string]int{"n": 1}, true))
	assert.Equal(t, "{\n  \"n\": 1\n}\n", buf.String())

	err := Write(&buf, make(chan int), false)
	assert.ErrorIs(t, err, ErrMarshal)
}
