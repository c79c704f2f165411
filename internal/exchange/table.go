package exchange

// action is what the registrar does in response to a message.
type action uint8

const (
	actNone action = iota
	actIdentity
	actSendM2
	actSendM4
	actSendM6
	actRepeatM6 // M6 again, only when the policy allows it
	actDone     // AP revealed the second half verified; NACK and finish
	actNack     // AP gave up
	actTerminate
)

type transition struct {
	act  action
	next State
}

type key struct {
	state State
	msg   Message
}

// anyState keys wildcard rows that apply when no exact row matches.
const anyState State = 0xFF

// transitions is the registrar side of the WSC registration protocol.
// Messages with no row are out of order when they are enrollee messages
// the registrar normally answers (M1, M3, M5) and fatal otherwise.
var transitions = map[key]transition{
	{StateIdle, MsgIdentityRequest}:           {actIdentity, StateIdentityExchanged},
	{StateEAPOLStartSent, MsgIdentityRequest}: {actIdentity, StateIdentityExchanged},
	{anyState, MsgIdentityRequest}:            {actIdentity, anyState},

	{StateIdentityExchanged, MsgM1}: {actSendM2, StateM2Sent},
	{StateM2Sent, MsgM3}:            {actSendM4, StateM4Sent},
	{StateM4Sent, MsgM5}:            {actSendM6, StateM6Sent},
	{StateM6Sent, MsgM5}:            {actRepeatM6, StateM6Sent},

	{anyState, MsgM7}:        {actDone, anyState},
	{anyState, MsgDone}:      {actDone, anyState},
	{anyState, MsgNack}:      {actNack, anyState},
	{anyState, MsgTerminate}: {actTerminate, anyState},
}

// lookup returns the row for msg in state. ok is false for unhandled
// messages; answerable reports whether msg is one the registrar answers in
// some other state.
func lookup(state State, msg Message) (t transition, ok, answerable bool) {
	if t, ok := transitions[key{state, msg}]; ok {
		return resolve(t, state), true, true
	}
	if t, ok := transitions[key{anyState, msg}]; ok {
		return resolve(t, state), true, true
	}
	switch msg {
	case MsgM1, MsgM3, MsgM5:
		return transition{}, false, true
	}
	return transition{}, false, false
}

func resolve(t transition, state State) transition {
	if t.next == anyState {
		t.next = state
	}
	return t
}
