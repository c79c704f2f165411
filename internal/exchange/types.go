// Package exchange runs one WPS registration attempt against an AP and
// classifies how it ended.
package exchange

import (
	"fmt"

	"github.com/Redfern89/reaver-redfern89/internal/frame"
	"github.com/Redfern89/reaver-redfern89/internal/wsc"
)

// Outcome is the classification of one attempt.
type Outcome uint8

const (
	KeyAccepted Outcome = iota
	KeyRejected
	RxTimeout
	EAPFail
	UnknownError
)

func (o Outcome) String() string {
	switch o {
	case KeyAccepted:
		return "KEY_ACCEPTED"
	case KeyRejected:
		return "KEY_REJECTED"
	case RxTimeout:
		return "RX_TIMEOUT"
	case EAPFail:
		return "EAP_FAIL"
	case UnknownError:
		return "UNKNOWN_ERROR"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// State is the registrar's position in the transaction.
type State uint8

const (
	StateIdle State = iota
	StateEAPOLStartSent
	StateIdentityExchanged
	StateM2Sent
	StateM4Sent
	StateM6Sent
	StateAccepted
	StateRejected
	StateTimeout
	StateFailed
)

var stateNames = [...]string{
	"IDLE", "EAPOL_START_SENT", "IDENTITY_EXCHANGED", "M2_SENT", "M4_SENT",
	"M6_SENT", "ACCEPTED", "REJECTED", "TIMEOUT", "FAILED",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Message is a received protocol event. Values are ordered so the highest
// message seen so far tells how far the AP got.
type Message uint8

const (
	MsgUnknown Message = iota
	MsgIdentityRequest
	MsgM1
	MsgM2
	MsgM2D
	MsgM3
	MsgM4
	MsgM5
	MsgM6
	MsgM7
	MsgM8
	MsgAck
	MsgNack
	MsgDone
	MsgTerminate
	MsgDeauth
)

var messageNames = map[Message]string{
	MsgUnknown:         "UNKNOWN",
	MsgIdentityRequest: "IDENTITY_REQUEST",
	MsgTerminate:       "TERMINATE",
	MsgDeauth:          "DEAUTH",
}

var fromWSC = map[wsc.MessageType]Message{
	wsc.MsgM1:   MsgM1,
	wsc.MsgM2:   MsgM2,
	wsc.MsgM2D:  MsgM2D,
	wsc.MsgM3:   MsgM3,
	wsc.MsgM4:   MsgM4,
	wsc.MsgM5:   MsgM5,
	wsc.MsgM6:   MsgM6,
	wsc.MsgM7:   MsgM7,
	wsc.MsgM8:   MsgM8,
	wsc.MsgAck:  MsgAck,
	wsc.MsgNack: MsgNack,
	wsc.MsgDone: MsgDone,
}

func init() {
	for w, m := range fromWSC {
		messageNames[m] = w.String()
	}
}

func (m Message) String() string {
	if s, ok := messageNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Message(%d)", uint8(m))
}

// messageOf maps a classified frame to a protocol event.
func messageOf(f frame.Frame) Message {
	switch f.Kind {
	case frame.KindDeauth:
		return MsgDeauth
	case frame.KindIdentityRequest:
		return MsgIdentityRequest
	case frame.KindEAPFailure:
		return MsgTerminate
	case frame.KindWSC:
		return fromWSC[f.Msg()]
	}
	return MsgUnknown
}

// isRequest reports whether f is an EAP request from the AP.
func isRequest(f frame.Frame) bool {
	return f.Kind == frame.KindIdentityRequest || f.Kind == frame.KindWSC
}

// Result describes how an attempt ended.
type Result struct {
	Outcome     Outcome
	State       State
	LastMessage Message
	GotNack     bool
	NackReason  uint16
	SetupLocked bool
}
