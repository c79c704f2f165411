package wsc

import (
	"errors"

	"github.com/Redfern89/reaver-redfern89/internal/pin"
)

// Registrar produces the cryptographic registrar messages (M2, M4, M6) and
// consumes the enrollee's. The engine only drives message order; key
// derivation and authenticators live behind this interface.
type Registrar interface {
	// Reset discards per-transaction state before a new exchange.
	Reset(candidate pin.Candidate)
	// Process feeds a received enrollee message body.
	Process(msg MessageType, body []byte) error
	// Build returns the body of the next registrar message.
	Build(msg MessageType) ([]byte, error)
	// Nonces returns the enrollee and registrar nonces of the transaction.
	Nonces() (enrollee, registrar []byte)
}

var ErrNoRegistrar = errors.New("wsc: no registrar backend available")

// Unavailable is the Registrar used when no backend is linked in. It
// tracks nonces so NACKs stay well formed, but cannot build M2/M4/M6.
type Unavailable struct {
	enrollee  []byte
	registrar []byte
}

func (u *Unavailable) Reset(pin.Candidate) {
	u.enrollee, u.registrar = nil, nil
}

func (u *Unavailable) Process(_ MessageType, body []byte) error {
	a, err := Parse(body)
	if err != nil {
		return err
	}
	if a.EnrolleeNonce != nil {
		u.enrollee = a.EnrolleeNonce
	}
	if a.RegistrarNonce != nil {
		u.registrar = a.RegistrarNonce
	}
	return nil
}

func (u *Unavailable) Build(MessageType) ([]byte, error) {
	return nil, ErrNoRegistrar
}

func (u *Unavailable) Nonces() (enrollee, registrar []byte) {
	return u.enrollee, u.registrar
}
