package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModel_CannedResponses(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddResponse("refine", "refined text")

	resp, err := Complete(context.Background(), m, UserRequest("sys", "please refine this"))
	require.NoError(t, err)
	assert.Equal(t, "refined text", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)

	resp, err = Complete(context.Background(), m, UserRequest("", "other"))
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: other", resp.Text)

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "sys", calls[0].System)
}

func TestMockModel_StreamingReturnsFinal(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddResponse("hi", "hello there friend")

	req := UserRequest("", "hi")
	req.Stream = true

	respCh, errCh := m.Generate(context.Background(), req)
	var partials []string
	var final string
	for r := range respCh {
		if r.Partial {
			partials = append(partials, r.Text)
			continue
		}
		final = r.Text
	}
	assert.NoError(t, <-errCh)
	assert.Equal(t, []string{"hello ", "there ", "friend"}, partials)
	assert.Equal(t, "hello there friend", final)
}

func TestComplete_PropagatesErrors(t *testing.T) {
	m := NewMockModel("mock", "mock")
	boom := errors.New("rate limited")
	m.SetError(boom)

	_, err := Complete(context.Background(), m, UserRequest("", "x"))
	assert.ErrorIs(t, err, boom)

	m.SetError(nil)
	_, err = Complete(context.Background(), m, Request{})
	assert.Error(t, err)
}
