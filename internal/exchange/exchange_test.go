package exchange

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Redfern89/reaver-redfern89/internal/capture"
	"github.com/Redfern89/reaver-redfern89/internal/frame"
	"github.com/Redfern89/reaver-redfern89/internal/pin"
	"github.com/Redfern89/reaver-redfern89/internal/wsc"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeAP answers each transmitted frame with the frames scripted for it.
// Labels: start, identity, M2, M4, M6, WSC_NACK, eap-failure.
type fakeAP struct {
	clock   *fakeClock
	replies map[string][]frame.Frame
	queue   []frame.Frame
	sent    []string
	readErr error
}

func (ap *fakeAP) ReadFrame(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	if len(ap.queue) > 0 {
		f := ap.queue[0]
		ap.queue = ap.queue[1:]
		return f, nil
	}
	if ap.readErr != nil {
		return frame.Frame{}, ap.readErr
	}
	ap.clock.Advance(100 * time.Millisecond)
	return frame.Frame{}, capture.ErrReadTimeout
}

func (ap *fakeAP) record(label string) {
	ap.sent = append(ap.sent, label)
	ap.queue = append(ap.queue, ap.replies[label]...)
	// each scripted reply is delivered once
	delete(ap.replies, label)
}

func (ap *fakeAP) SendEAPOLStart(context.Context) error {
	ap.record("start")
	return nil
}

func (ap *fakeAP) SendIdentityResponse(context.Context, uint8) error {
	ap.record("identity")
	return nil
}

func (ap *fakeAP) SendWSC(_ context.Context, _ uint8, op wsc.Opcode, body []byte) error {
	if op == wsc.OpNack {
		ap.record(wsc.MsgNack.String())
		return nil
	}
	ap.record(wsc.MessageType(body[0]).String())
	return nil
}

func (ap *fakeAP) SendEAPFailure(context.Context, uint8) error {
	ap.record("eap-failure")
	return nil
}

type mockRegistrar struct{ mock.Mock }

func (m *mockRegistrar) Reset(c pin.Candidate) { m.Called(c) }

func (m *mockRegistrar) Process(msg wsc.MessageType, body []byte) error {
	return m.Called(msg, body).Error(0)
}

func (m *mockRegistrar) Build(msg wsc.MessageType) ([]byte, error) {
	args := m.Called(msg)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockRegistrar) Nonces() (enrollee, registrar []byte) { return nil, nil }

func newRegistrar() *mockRegistrar {
	r := &mockRegistrar{}
	r.On("Reset", mock.Anything).Return()
	r.On("Process", mock.Anything, mock.Anything).Return(nil)
	for _, m := range []wsc.MessageType{wsc.MsgM2, wsc.MsgM4, wsc.MsgM6} {
		r.On("Build", m).Return([]byte{byte(m)}, nil)
	}
	return r
}

func identityReq() frame.Frame { return frame.Frame{Kind: frame.KindIdentityRequest, EAPID: 1} }

func msg(t wsc.MessageType) frame.Frame {
	return frame.Frame{Kind: frame.KindWSC, EAPID: 2, Opcode: wsc.OpMsg, Attrs: wsc.Attributes{MessageType: t}}
}

func nack(reason uint16) frame.Frame {
	return frame.Frame{Kind: frame.KindWSC, EAPID: 3, Opcode: wsc.OpNack,
		Attrs: wsc.Attributes{MessageType: wsc.MsgNack, ConfigError: reason, HasConfigError: true}}
}

// happyPath scripts an AP that accepts every half.
func happyPath() map[string][]frame.Frame {
	return map[string][]frame.Frame{
		"start":    {identityReq()},
		"identity": {msg(wsc.MsgM1)},
		"M2":       {msg(wsc.MsgM3)},
		"M4":       {msg(wsc.MsgM5)},
		"M6":       {msg(wsc.MsgM7)},
	}
}

type harness struct {
	ap   *fakeAP
	reg  *mockRegistrar
	ex   *Exchange
	keys *pin.Space
	hook *test.Hook
}

func newHarness(replies map[string][]frame.Frame, policy Policy) *harness {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	ap := &fakeAP{clock: clock, replies: replies}
	reg := newRegistrar()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	if policy.ReceiveTimeout == 0 {
		policy.ReceiveTimeout = time.Second
	}
	ex := New(ap, reg, policy, logrus.NewEntry(logger))
	ex.now = clock.Now
	return &harness{ap: ap, reg: reg, ex: ex, keys: pin.NewSpace(), hook: hook}
}

func (h *harness) run(t *testing.T) Result {
	t.Helper()
	cand, err := h.keys.Next()
	require.NoError(t, err)
	res, err := h.ex.Run(context.Background(), h.keys, cand)
	require.NoError(t, err)
	return res
}

func (h *harness) warned(substr string) bool {
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func TestRunAccepted(t *testing.T) {
	h := newHarness(happyPath(), Policy{})
	res := h.run(t)

	assert.Equal(t, KeyAccepted, res.Outcome)
	assert.Equal(t, StateAccepted, res.State)
	assert.Equal(t, pin.KeyDone, h.keys.Status())
	assert.Equal(t, []string{"start", "identity", "M2", "M4", "M6", "WSC_NACK", "WSC_NACK"}, h.ap.sent)
	h.reg.AssertCalled(t, "Process", wsc.MsgM7, mock.Anything)
}

func TestRunAcceptedOnDone(t *testing.T) {
	replies := happyPath()
	replies["M6"] = []frame.Frame{msg(wsc.MsgDone)}
	h := newHarness(replies, Policy{})
	h.keys.SetStatus(pin.Key2WIP)

	res := h.run(t)
	assert.Equal(t, KeyAccepted, res.Outcome)
}

func TestRunFirstHalfRejected(t *testing.T) {
	replies := happyPath()
	replies["M4"] = []frame.Frame{nack(wsc.ConfigErrorNone)}
	h := newHarness(replies, Policy{TimeoutIsNack: true})

	res := h.run(t)
	assert.Equal(t, KeyRejected, res.Outcome)
	assert.True(t, res.GotNack)
	assert.Equal(t, MsgM3, res.LastMessage)
	assert.Equal(t, pin.Key1WIP, h.keys.Status())
	assert.False(t, h.ex.Policy().TimeoutIsNack, "a proper NACK disables timeout-as-NACK")
	assert.Equal(t, "WSC_NACK", h.ap.sent[len(h.ap.sent)-1])
}

func TestRunSecondHalfRejectedSetupLocked(t *testing.T) {
	replies := happyPath()
	replies["M6"] = []frame.Frame{nack(wsc.ConfigErrorSetupLocked)}
	h := newHarness(replies, Policy{})

	res := h.run(t)
	assert.Equal(t, KeyRejected, res.Outcome)
	assert.True(t, res.SetupLocked)
	assert.Equal(t, MsgM5, res.LastMessage)
	assert.Equal(t, pin.Key2WIP, h.keys.Status(), "M5 proves the first half")
	assert.True(t, h.warned("setup locked"))
}

func TestRunFakeNack(t *testing.T) {
	replies := happyPath()
	replies["M4"] = []frame.Frame{nack(wsc.ConfigErrorMessageTimeout)}
	h := newHarness(replies, Policy{})

	res := h.run(t)
	assert.Equal(t, UnknownError, res.Outcome)
	assert.Equal(t, wsc.ConfigErrorMessageTimeout, res.NackReason)
	assert.True(t, h.warned("FAKE NACK"))
}

func TestRunFirstHalfChanged(t *testing.T) {
	replies := happyPath()
	replies["M4"] = []frame.Frame{nack(wsc.ConfigErrorNone)}
	h := newHarness(replies, Policy{})
	h.keys.SetStatus(pin.Key2WIP)

	res := h.run(t)
	assert.Equal(t, UnknownError, res.Outcome)
	assert.True(t, h.warned("first half"))
}

func TestRunEarlyNack(t *testing.T) {
	replies := happyPath()
	replies["M2"] = []frame.Frame{nack(wsc.ConfigErrorNone)}
	h := newHarness(replies, Policy{TimeoutIsNack: true})

	res := h.run(t)
	assert.Equal(t, UnknownError, res.Outcome)
	assert.Equal(t, MsgM1, res.LastMessage)
	assert.True(t, h.ex.Policy().TimeoutIsNack)
}

func TestRunEAPFailure(t *testing.T) {
	replies := happyPath()
	replies["identity"] = []frame.Frame{{Kind: frame.KindEAPFailure, EAPID: 1}}
	h := newHarness(replies, Policy{})

	res := h.run(t)
	assert.Equal(t, EAPFail, res.Outcome)
	assert.Equal(t, []string{"start", "identity", "WSC_NACK", "eap-failure"}, h.ap.sent)
}

func TestRunEAPTerminateOption(t *testing.T) {
	h := newHarness(happyPath(), Policy{EAPTerminate: true})
	res := h.run(t)
	assert.Equal(t, KeyAccepted, res.Outcome)
	assert.Equal(t, "eap-failure", h.ap.sent[len(h.ap.sent)-1])
}

func TestRunTimeoutAfterM4(t *testing.T) {
	for _, tc := range []struct {
		name          string
		timeoutIsNack bool
		want          Outcome
	}{
		{"timeout as nack", true, KeyRejected},
		{"timeout is retry", false, RxTimeout},
	} {
		t.Run(tc.name, func(t *testing.T) {
			replies := happyPath()
			delete(replies, "M4")
			h := newHarness(replies, Policy{TimeoutIsNack: tc.timeoutIsNack, M57Timeout: 400 * time.Millisecond})

			res := h.run(t)
			assert.Equal(t, tc.want, res.Outcome)
			assert.Equal(t, MsgM3, res.LastMessage)
			assert.False(t, res.GotNack)
		})
	}
}

func TestRunTimeoutAfterM2IsRetry(t *testing.T) {
	replies := happyPath()
	delete(replies, "M2")
	h := newHarness(replies, Policy{TimeoutIsNack: true})

	res := h.run(t)
	assert.Equal(t, RxTimeout, res.Outcome)
}

func TestRunOutOfOrderNacks(t *testing.T) {
	replies := happyPath()
	replies["identity"] = []frame.Frame{msg(wsc.MsgM3)}
	h := newHarness(replies, Policy{})

	res := h.run(t)
	assert.Equal(t, EAPFail, res.Outcome)
	assert.Equal(t, []string{"start", "identity", "WSC_NACK", "WSC_NACK", "eap-failure"}, h.ap.sent)
}

func TestRunIgnoreOutOfOrder(t *testing.T) {
	replies := happyPath()
	replies["identity"] = []frame.Frame{msg(wsc.MsgM3), msg(wsc.MsgM1)}
	h := newHarness(replies, Policy{IgnoreOutOfOrder: true})

	res := h.run(t)
	assert.Equal(t, KeyAccepted, res.Outcome)
	assert.Equal(t, []string{"start", "identity", "M2", "M4", "M6", "WSC_NACK", "WSC_NACK"}, h.ap.sent)
}

func TestRunUnexpectedMessageTerminates(t *testing.T) {
	replies := happyPath()
	replies["M2"] = []frame.Frame{msg(wsc.MsgM4)}
	h := newHarness(replies, Policy{})

	res := h.run(t)
	assert.Equal(t, EAPFail, res.Outcome)
	assert.True(t, h.warned("Unexpected packet"))
}

func TestRunRepeatM6(t *testing.T) {
	replies := happyPath()
	replies["M6"] = []frame.Frame{msg(wsc.MsgM5)}
	h := newHarness(replies, Policy{RepeatM6: true})
	// both replies are queued on the first M6
	h.ap.replies["M6"] = append(h.ap.replies["M6"], msg(wsc.MsgM7))

	res := h.run(t)
	assert.Equal(t, KeyAccepted, res.Outcome)
}

func TestRunRepeatedM5WithoutRepeatIsOutOfOrder(t *testing.T) {
	replies := happyPath()
	replies["M6"] = []frame.Frame{msg(wsc.MsgM5)}
	h := newHarness(replies, Policy{})

	res := h.run(t)
	assert.Equal(t, EAPFail, res.Outcome)
}

func TestRunDeauthDoesNotEndExchange(t *testing.T) {
	replies := happyPath()
	replies["M2"] = []frame.Frame{{Kind: frame.KindDeauth}, {Kind: frame.KindDeauth}, msg(wsc.MsgM3)}
	h := newHarness(replies, Policy{})

	res := h.run(t)
	assert.Equal(t, KeyAccepted, res.Outcome)
}

func TestRunEAPOLStartRetries(t *testing.T) {
	h := newHarness(map[string][]frame.Frame{}, Policy{})

	res := h.run(t)
	assert.Equal(t, RxTimeout, res.Outcome)
	starts := 0
	for _, s := range h.ap.sent {
		if s == "start" {
			starts++
		}
	}
	assert.Equal(t, EAPOLStartMaxTries, starts)
	assert.True(t, h.warned("successive start failures"))
}

func TestRunLinkError(t *testing.T) {
	h := newHarness(map[string][]frame.Frame{}, Policy{})
	h.ap.readErr = errors.New("device gone")

	cand, _ := h.keys.Next()
	_, err := h.ex.Run(context.Background(), h.keys, cand)
	assert.EqualError(t, err, "device gone")
	assert.Equal(t, "WSC_NACK", h.ap.sent[len(h.ap.sent)-1])
}

func TestRunCancelled(t *testing.T) {
	h := newHarness(happyPath(), Policy{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cand, _ := h.keys.Next()
	_, err := h.ex.Run(ctx, h.keys, cand)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "WSC_NACK", h.ap.sent[len(h.ap.sent)-1], "closing NACK is best effort")
}

func TestRunRegistrarUnavailable(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	ap := &fakeAP{clock: clock, replies: happyPath()}
	ex := New(ap, &wsc.Unavailable{}, Policy{}, nil)
	ex.now = clock.Now
	keys := pin.NewSpace()
	cand, _ := keys.Next()

	_, err := ex.Run(context.Background(), keys, cand)
	assert.ErrorIs(t, err, wsc.ErrNoRegistrar)
}

func TestLookup(t *testing.T) {
	tr, ok, _ := lookup(StateIdentityExchanged, MsgM1)
	require.True(t, ok)
	assert.Equal(t, actSendM2, tr.act)
	assert.Equal(t, StateM2Sent, tr.next)

	tr, ok, _ = lookup(StateM4Sent, MsgIdentityRequest)
	require.True(t, ok)
	assert.Equal(t, actIdentity, tr.act)
	assert.Equal(t, StateM4Sent, tr.next, "wildcard rows keep the state")

	_, ok, answerable := lookup(StateM2Sent, MsgM1)
	assert.False(t, ok)
	assert.True(t, answerable)

	_, ok, answerable = lookup(StateM2Sent, MsgM6)
	assert.False(t, ok)
	assert.False(t, answerable)
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "KEY_REJECTED", KeyRejected.String())
	assert.Equal(t, "M4_SENT", StateM4Sent.String())
	assert.Equal(t, "M5", MsgM5.String())
	assert.Equal(t, "DEAUTH", MsgDeauth.String())
}
