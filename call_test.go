package jsonrpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arakmar/vdsm-jsonrpc-go/message"
)

func TestCallWaitReturnsResponse(t *testing.T) {
	req, _ := message.NewRequest("1", "Host.ping", nil)
	call := newCall(req)

	go call.AddResponse(&message.Response{ID: json.RawMessage(`"1"`), Result: json.RawMessage("true")})

	resp, err := call.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("true"), resp.Result)
}

func TestCallWaitHonorsContextDeadline(t *testing.T) {
	req, _ := message.NewRequest("1", "Host.ping", nil)
	call := newCall(req)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := call.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallLatchesFirstCompletion(t *testing.T) {
	req, _ := message.NewRequest("1", "Host.ping", nil)
	call := newCall(req)

	call.AddResponse(&message.Response{ID: json.RawMessage(`"1"`), Result: json.RawMessage("1")})
	call.Fail(assertErr)

	resp, err := call.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("1"), resp.Result)
}

var assertErr = &testError{"should never surface"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func TestBatchCallAssemblesInOriginalOrder(t *testing.T) {
	r1, _ := message.NewRequest("1", "a", nil)
	r2, _ := message.NewRequest("2", "b", nil)
	r3, _ := message.NewRequest("3", "c", nil)
	batch := newBatchCall([]*message.Request{r1, r2, r3})

	// Responses arrive out of order.
	batch.AddResponse(&message.Response{ID: json.RawMessage(`"3"`), Result: json.RawMessage(`"c"`)})
	batch.AddResponse(&message.Response{ID: json.RawMessage(`"1"`), Result: json.RawMessage(`"a"`)})
	batch.AddResponse(&message.Response{ID: json.RawMessage(`"2"`), Result: json.RawMessage(`"b"`)})

	resps, err := batch.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, resps, 3)
	assert.Equal(t, json.RawMessage(`"a"`), resps[0].Result)
	assert.Equal(t, json.RawMessage(`"b"`), resps[1].Result)
	assert.Equal(t, json.RawMessage(`"c"`), resps[2].Result)
}

func TestBatchCallSkipsNotifications(t *testing.T) {
	r1, _ := message.NewRequest("1", "a", nil)
	n, _ := message.NewNotification("fire-and-forget", nil)
	batch := newBatchCall([]*message.Request{r1, n})

	batch.AddResponse(&message.Response{ID: json.RawMessage(`"1"`), Result: json.RawMessage("1")})

	resps, err := batch.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, resps, 1)
}

func TestBatchCallRemapRelocatesSlot(t *testing.T) {
	r1, _ := message.NewRequest("1", "a", nil)
	r2, _ := message.NewRequest("2", "b", nil)
	batch := newBatchCall([]*message.Request{r1, r2})

	batch.Remap("1", "1-retry")
	batch.AddResponse(&message.Response{ID: json.RawMessage(`"1-retry"`), Result: json.RawMessage(`"a"`)})
	batch.AddResponse(&message.Response{ID: json.RawMessage(`"2"`), Result: json.RawMessage(`"b"`)})

	resps, err := batch.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"a"`), resps[0].Result)
	assert.Equal(t, json.RawMessage(`"b"`), resps[1].Result)
}

func TestBatchCallFailCompletesWait(t *testing.T) {
	r1, _ := message.NewRequest("1", "a", nil)
	batch := newBatchCall([]*message.Request{r1})
	batch.Fail(assertErr)

	_, err := batch.Wait(context.Background())
	assert.Equal(t, assertErr, err)
}
