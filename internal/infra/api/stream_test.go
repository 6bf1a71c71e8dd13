package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lesson_planner_bot/internal/domain/auth"
)

func sseHandler(t *testing.T, events ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, ev := range events {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", ev)
			flusher.Flush()
		}
	}
}

func TestStreamMessage_ChunksThenDone(t *testing.T) {
	var gotQuery, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAccept = r.Header.Get("Accept")
		assert.Equal(t, "/classrooms/c1/chats/ch1/messages/stream", r.URL.Path)
		sseHandler(t,
			`{"type":"chunk","content":"Warm-up: "}`,
			`{"type":"chunk","content":"10 minutes"}`,
			`{"type":"done","stopReason":"length","savedMessageId":"m-42"}`,
		)(w, r)
	}))
	defer srv.Close()

	svc := newTestClient(t, srv, &memCredentials{token: "abc"}, nil)

	var chunks []string
	reply, err := svc.Chats.StreamMessage(context.Background(), "c1", "ch1", "plan a lesson", func(c string) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Warm-up: ", "10 minutes"}, chunks)
	assert.Equal(t, "Warm-up: 10 minutes", reply.Content)
	assert.Equal(t, "m-42", reply.MessageID)
	assert.True(t, reply.Truncated())
	assert.Equal(t, "message=plan+a+lesson&token=abc", gotQuery)
	assert.Equal(t, "text/event-stream", gotAccept)
}

func TestStreamMessage_RawTextChunks(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t,
		`Hello`,
		`world`,
		`{"type":"done","stopReason":null,"savedMessageId":"m-1"}`,
	))
	defer srv.Close()

	svc := newTestClient(t, srv, &memCredentials{token: "abc"}, nil)
	reply, err := svc.Chats.StreamMessage(context.Background(), "c1", "ch1", "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "Helloworld", reply.Content)
	assert.Empty(t, reply.StopReason)
	assert.False(t, reply.Truncated())
}

func TestStreamMessage_ErrorEvent(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t,
		`{"type":"chunk","content":"partial"}`,
		`{"type":"error","message":"model overloaded"}`,
	))
	defer srv.Close()

	svc := newTestClient(t, srv, &memCredentials{token: "abc"}, nil)
	reply, err := svc.Chats.StreamMessage(context.Background(), "c1", "ch1", "hi", nil)
	assert.Nil(t, reply)

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "model overloaded", streamErr.Message)
	assert.Equal(t, "The assistant failed to answer: model overloaded", UserMessage(err))
}

func TestStreamMessage_EndWithoutDoneIsConnectionError(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, `{"type":"chunk","content":"partial"}`))
	defer srv.Close()

	svc := newTestClient(t, srv, &memCredentials{token: "abc"}, nil)
	_, err := svc.Chats.StreamMessage(context.Background(), "c1", "ch1", "hi", nil)
	assert.ErrorIs(t, err, ErrStreamInterrupted)
}

func TestStreamMessage_CancelStopsBufferMutation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		_, _ = fmt.Fprint(w, "data: {\"type\":\"chunk\",\"content\":\"one\"}\n\n")
		flusher.Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
		_, _ = fmt.Fprint(w, "data: {\"type\":\"chunk\",\"content\":\"two\"}\n\n")
		flusher.Flush()
	}))
	defer srv.Close()
	defer close(release)

	svc := newTestClient(t, srv, &memCredentials{token: "abc"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var chunks []string
	_, err := svc.Chats.StreamMessage(ctx, "c1", "ch1", "hi", func(c string) {
		chunks = append(chunks, c)
		cancel()
	})

	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Equal(t, []string{"one"}, chunks)
}

func TestStreamMessage_RefreshesOnUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			writeData(t, w, http.StatusOK, auth.RefreshResponse{Token: "fresh", RefreshToken: "refresh-2"})
			return
		}
		if r.URL.Query().Get("token") != "fresh" {
			writeUnauthorized(w)
			return
		}
		sseHandler(t, `{"type":"done","savedMessageId":"m-9"}`)(w, r)
	}))
	defer srv.Close()

	svc := newTestClient(t, srv, &memCredentials{token: "stale", refreshToken: "refresh-1"}, nil)
	reply, err := svc.Chats.StreamMessage(context.Background(), "c1", "ch1", "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "m-9", reply.MessageID)
}

func TestStreamMessage_RejectsEmptyMessage(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	svc := newTestClient(t, srv, &memCredentials{token: "abc"}, nil)
	_, err := svc.Chats.StreamMessage(context.Background(), "c1", "ch1", "   ", nil)
	require.Error(t, err)
	assert.Equal(t, "content is required", UserMessage(err))
}

func TestConsumeStream_Framing(t *testing.T) {
	input := strings.Join([]string{
		": keep-alive",
		"event: message",
		"data: first line",
		"data: second line",
		"",
		"id: 7",
		"data:{\"type\":\"done\",\"savedMessageId\":\"m-1\"}",
		"",
		"data: ignored after done",
		"",
	}, "\r\n")

	var chunks []string
	reply, err := consumeStream(context.Background(), strings.NewReader(input), func(c string) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first line\nsecond line"}, chunks)
	assert.Equal(t, "first line\nsecond line", reply.Content)
	assert.Equal(t, "m-1", reply.MessageID)
}

func TestConsumeStream_DoneWithoutTrailingBlankLine(t *testing.T) {
	input := "data: {\"type\":\"chunk\",\"content\":\"a\"}\n\ndata: {\"type\":\"done\",\"savedMessageId\":\"m-2\"}"
	reply, err := consumeStream(context.Background(), strings.NewReader(input), nil)
	require.NoError(t, err)
	assert.Equal(t, "a", reply.Content)
}
