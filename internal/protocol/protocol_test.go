package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest_NoArgs(t *testing.T) {
	body, err := EncodeRequest([][]json.RawMessage{nil})
	require.NoError(t, err)
	assert.JSONEq(t, `[[]]`, string(body))
}

func TestEncodeRequest_PositionalArgs(t *testing.T) {
	first, err := EncodeArgs([]any{1, "a"})
	require.NoError(t, err)
	second, err := EncodeArgs([]any{map[string]int{"id": 3}})
	require.NoError(t, err)

	body, err := EncodeRequest([][]json.RawMessage{first, second})
	require.NoError(t, err)
	assert.JSONEq(t, `[[1,"a"],[{"id":3}]]`, string(body))
}

func TestParseRequest(t *testing.T) {
	jobs, err := ParseRequest([]byte(` [[1,"a"],[],null] `))
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	for i, job := range jobs {
		assert.Equal(t, i, job.Index)
	}
	assert.Len(t, jobs[0].Args, 2)
	assert.NotNil(t, jobs[2].Args)
	assert.Empty(t, jobs[2].Args)

	var n int
	var s string
	require.NoError(t, jobs[0].DecodeArgs(&n, &s))
	assert.Equal(t, 1, n)
	assert.Equal(t, "a", s)
}

func TestParseRequest_Empty(t *testing.T) {
	for _, body := range []string{"", "  ", "null"} {
		jobs, err := ParseRequest([]byte(body))
		require.NoError(t, err, body)
		assert.Empty(t, jobs, body)
	}
}

func TestParseRequest_Invalid(t *testing.T) {
	_, err := ParseRequest([]byte(`{"a":1}`))
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestMarshalSuccess_ParseResult(t *testing.T) {
	line, err := MarshalSuccess(2, map[string]any{"name": "x"}, []string{"orders"}, nil)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), line[len(line)-1])
	assert.JSONEq(t, `{"index":2,"data":{"name":"x"},"read":["orders"],"changed":[]}`, string(line))

	result, err := ParseResult(line)
	require.NoError(t, err)
	assert.False(t, result.HasError())
	assert.Equal(t, 2, result.Index)
	assert.JSONEq(t, `{"name":"x"}`, string(result.Data))
	assert.Equal(t, []string{"orders"}, result.Read)
	assert.Empty(t, result.Changed)
}

func TestMarshalError_ParseResult(t *testing.T) {
	result, err := ParseResult(MarshalError(0, "wtf"))
	require.NoError(t, err)
	require.True(t, result.HasError())
	assert.Equal(t, "wtf", result.Error.Error())
}

func TestParseResult_ErrorPayloads(t *testing.T) {
	tests := []struct {
		line    string
		isError bool
		message string
	}{
		{`{"index":0,"error":"boom"}`, true, "boom"},
		{`{"index":0,"error":{"message":"boom"}}`, true, "boom"},
		{`{"index":0,"error":42}`, true, "42"},
		{`{"index":0,"error":""}`, false, ""},
		{`{"index":0,"error":null,"data":1}`, false, ""},
		{`{"index":0,"data":"hello","read":[],"changed":[]}`, false, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.line, func(t *testing.T) {
			result, err := ParseResult([]byte(tt.line))
			require.NoError(t, err)
			assert.Equal(t, tt.isError, result.HasError())
			if tt.isError {
				assert.Equal(t, tt.message, result.Error.Message)
			}
		})
	}
}

func TestParseResult_Invalid(t *testing.T) {
	_, err := ParseResult([]byte(`{not json`))
	assert.Error(t, err)

	_, err = ParseResult([]byte(`{"data":"x"}`))
	assert.ErrorIs(t, err, ErrMissingIndex)
}
