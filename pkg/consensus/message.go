package consensus

import (
    "context"
    "errors"
    "fmt"
)

// MessageKind tags the protocol message variants. The set is closed: every
// dispatch site switches exhaustively and surfaces ErrUnknownMessage for
// anything else, so a codec drift fails loudly instead of being ignored.
type MessageKind uint8

const (
    KindVoteRequest MessageKind = iota + 1
    KindVoteResponse
    KindAppendEntries
    KindAppendEntriesResponse
)

func (k MessageKind) String() string {
    switch k {
    case KindVoteRequest:
        return "vote_request"
    case KindVoteResponse:
        return "vote_response"
    case KindAppendEntries:
        return "append_entries"
    case KindAppendEntriesResponse:
        return "append_entries_response"
    default:
        return fmt.Sprintf("unknown(%d)", uint8(k))
    }
}

var ErrUnknownMessage = errors.New("consensus: unknown message kind")

// Envelope carries exactly one protocol message, selected by Kind. Generic
// transports (in-proc, datagram) move Envelopes; typed transports (gRPC)
// bypass it and carry the structs directly.
type Envelope struct {
    Kind        MessageKind            `json:"kind"`
    Vote        *VoteRequest           `json:"vote,omitempty"`
    VoteReply   *VoteResponse          `json:"voteReply,omitempty"`
    Append      *AppendEntriesRequest  `json:"append,omitempty"`
    AppendReply *AppendEntriesResponse `json:"appendReply,omitempty"`
}

func WrapVoteRequest(req VoteRequest) Envelope {
    return Envelope{Kind: KindVoteRequest, Vote: &req}
}

func WrapVoteResponse(resp VoteResponse) Envelope {
    return Envelope{Kind: KindVoteResponse, VoteReply: &resp}
}

func WrapAppendEntries(req AppendEntriesRequest) Envelope {
    return Envelope{Kind: KindAppendEntries, Append: &req}
}

func WrapAppendEntriesResponse(resp AppendEntriesResponse) Envelope {
    return Envelope{Kind: KindAppendEntriesResponse, AppendReply: &resp}
}

// Dispatch routes a request envelope to h and wraps the reply. Response
// kinds are not dispatchable and report ErrUnknownMessage like any other
// unexpected kind; a Kind whose payload pointer is nil is malformed.
func Dispatch(ctx context.Context, h Handler, env Envelope) (Envelope, error) {
    switch env.Kind {
    case KindVoteRequest:
        if env.Vote == nil { return Envelope{}, fmt.Errorf("consensus: %s envelope without payload", env.Kind) }
        return WrapVoteResponse(h.HandleVoteRequest(ctx, *env.Vote)), nil
    case KindAppendEntries:
        if env.Append == nil { return Envelope{}, fmt.Errorf("consensus: %s envelope without payload", env.Kind) }
        return WrapAppendEntriesResponse(h.HandleAppendEntries(ctx, *env.Append)), nil
    case KindVoteResponse, KindAppendEntriesResponse:
        return Envelope{}, fmt.Errorf("consensus: %s is not dispatchable: %w", env.Kind, ErrUnknownMessage)
    default:
        return Envelope{}, fmt.Errorf("consensus: kind %s: %w", env.Kind, ErrUnknownMessage)
    }
}
