// internal/infra/api/stream.go
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"lesson_planner_bot/internal/domain/chat"
	"lesson_planner_bot/internal/infra/metrics"
)

// ChunkFunc receives reply text as it arrives. It is called from the
// goroutine that called StreamMessage.
type ChunkFunc func(chunk string)

// StreamMessage sends message to a chat and consumes the assistant's reply as
// a server-sent event stream. Every chunk is passed to onChunk; the returned
// Reply holds the concatenated text once the server signals completion.
//
// Cancelling ctx closes the connection. After cancellation onChunk is not
// called again and ctx.Err() is returned.
func (s *ChatService) StreamMessage(ctx context.Context, classroomID, chatID, message string, onChunk ChunkFunc) (*chat.Reply, error) {
	if err := s.client.validateRequest(&chat.SendMessageRequest{Content: strings.TrimSpace(message)}); err != nil {
		return nil, err
	}

	resp, err := s.client.send(ctx, &request{
		method: http.MethodGet,
		path:   pathf("/classrooms/%s/chats/%s/messages/stream", classroomID, chatID),
		query:  url.Values{"message": {message}},
		stream: true,
	})
	if err != nil {
		recordStreamOutcome(ctx, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		err := readError(resp, resp.Request.Header.Get(requestIDHeader))
		recordStreamOutcome(ctx, err)
		return nil, err
	}

	reply, err := consumeStream(ctx, resp.Body, onChunk)
	recordStreamOutcome(ctx, err)
	return reply, err
}

func recordStreamOutcome(ctx context.Context, err error) {
	switch {
	case err == nil:
		metrics.StreamsTotal.WithLabelValues("done").Inc()
	case ctx.Err() != nil:
		metrics.StreamsTotal.WithLabelValues("cancelled").Inc()
	default:
		metrics.StreamsTotal.WithLabelValues("error").Inc()
	}
}

// streamState accumulates the reply while events are dispatched.
type streamState struct {
	ctx     context.Context
	onChunk ChunkFunc
	full    strings.Builder
	reply   *chat.Reply
}

func (st *streamState) emit(chunk string) error {
	if err := st.ctx.Err(); err != nil {
		return err
	}
	st.full.WriteString(chunk)
	metrics.StreamChunksTotal.Inc()
	if st.onChunk != nil {
		st.onChunk(chunk)
	}
	return nil
}

// dispatch handles one event payload. It returns a non-nil error to stop
// consuming; st.reply is set once the stream is complete.
func (st *streamState) dispatch(payload string) error {
	var ev chat.StreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		// Not JSON: the payload is raw reply text.
		return st.emit(payload)
	}

	switch ev.Type {
	case chat.EventChunk:
		return st.emit(ev.Content)
	case chat.EventDone:
		if err := st.ctx.Err(); err != nil {
			return err
		}
		reply := &chat.Reply{MessageID: ev.SavedMessageID, Content: st.full.String()}
		if ev.StopReason != nil {
			reply.StopReason = *ev.StopReason
		}
		st.reply = reply
		return nil
	case chat.EventError:
		return &StreamError{Message: ev.Message}
	default:
		return nil
	}
}

// consumeStream reads text/event-stream framing from r: "data:" lines are
// joined with newlines and dispatched on a blank line. Other fields and
// comments are ignored.
func consumeStream(ctx context.Context, r io.Reader, onChunk ChunkFunc) (*chat.Reply, error) {
	st := &streamState{ctx: ctx, onChunk: onChunk}
	reader := bufio.NewReader(r)
	var data []string

	flush := func() error {
		if len(data) == 0 {
			return nil
		}
		payload := strings.Join(data, "\n")
		data = data[:0]
		return st.dispatch(payload)
	}

	for {
		line, readErr := reader.ReadString('\n')
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			switch {
			case line == "":
				if err := flush(); err != nil {
					return nil, err
				}
			case strings.HasPrefix(line, ":"):
				// comment / keep-alive
			default:
				field, value, _ := strings.Cut(line, ":")
				if field == "data" {
					data = append(data, strings.TrimPrefix(value, " "))
				}
			}
			if st.reply != nil {
				return st.reply, nil
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				if err := flush(); err != nil {
					return nil, err
				}
				if st.reply != nil {
					return st.reply, nil
				}
				return nil, ErrStreamInterrupted
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrStreamInterrupted, readErr)
		}
	}
}
