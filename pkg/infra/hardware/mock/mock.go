// Package mock is an in-memory TokenProvider: a real, stateful simulator
// rather than a call-recording stub, enforcing the same PIN-retry,
// slot-occupancy, and attestation preconditions the hardware-backed
// adapter enforces.
package mock

import (
	"context"
	"crypto"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/hardware"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/seed"
)

const maxPinRetries = 3

type slotState struct {
	slot    hardware.Slot
	keyPair *pkicrypto.KeyPair
	certDER []byte
}

type deviceState struct {
	device  hardware.Device
	pin     string
	puk     string
	retries int
	locked  bool
	slots   map[hardware.SlotTag]*slotState
}

// Provider is a concurrency-safe in-memory TokenProvider. Every device
// starts with PIN "123456" and PUK "12345678" (the PIV factory defaults)
// and all four slots empty.
type Provider struct {
	mu      sync.Mutex
	devices map[string]*deviceState
}

// New returns an empty Provider; call Register to add simulated devices.
func New() *Provider {
	return &Provider{devices: make(map[string]*deviceState)}
}

// Register adds a simulated device with factory-default PIN/PUK and empty slots.
func (p *Provider) Register(serial, firmware, formFactor string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slots := make(map[hardware.SlotTag]*slotState, 4)
	for _, tag := range []hardware.SlotTag{hardware.SlotAuthentication, hardware.SlotSignature, hardware.SlotKeyManagement, hardware.SlotCardAuth} {
		slots[tag] = &slotState{slot: hardware.Slot{Serial: serial, Tag: tag, State: hardware.SlotEmpty}}
	}
	p.devices[serial] = &deviceState{
		device:  hardware.Device{Serial: serial, Firmware: firmware, FormFactor: formFactor},
		pin:     "123456",
		puk:     "12345678",
		retries: maxPinRetries,
		slots:   slots,
	}
}

func (p *Provider) device(serial string) (*deviceState, error) {
	d, ok := p.devices[serial]
	if !ok {
		return nil, common.NewErrDeviceNotFound(serial)
	}
	return d, nil
}

func (p *Provider) ListDevices(ctx context.Context) ([]hardware.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]hardware.Device, 0, len(p.devices))
	for _, d := range p.devices {
		mask := uint8(0)
		for i, tag := range []hardware.SlotTag{hardware.SlotAuthentication, hardware.SlotSignature, hardware.SlotKeyManagement, hardware.SlotCardAuth} {
			if d.slots[tag].slot.State == hardware.SlotOccupied {
				mask |= 1 << uint(i)
			}
		}
		d.device.SlotsOccupiedMask = mask
		out = append(out, d.device)
	}
	return out, nil
}

// GenerateInSlot derives a key pair from a seed fixed by (serial, tag) and
// occupies the slot with it, handing back only the public half. A
// deterministic mock must reproduce the same key across runs, so the slot
// seed is a digest of the slot's own identity rather than fresh entropy.
func (p *Provider) GenerateInSlot(ctx context.Context, serial string, tag hardware.SlotTag, algo pkicrypto.Algorithm, pinPolicy hardware.PinPolicy, touchPolicy hardware.TouchPolicy) (crypto.PublicKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := p.device(serial)
	if err != nil {
		return nil, err
	}
	s, ok := d.slots[tag]
	if !ok {
		return nil, common.NewErrInvalidInput(fmt.Sprintf("unknown slot tag: %s", tag))
	}
	if s.slot.State == hardware.SlotOccupied {
		return nil, common.NewErrSlotOccupied(serial, string(tag))
	}

	slotSeed := deterministicSlotSeed(serial, tag)
	kp, err := pkicrypto.GenerateKeyPair(algo, slotSeed)
	if err != nil {
		return nil, err
	}

	fp, err := pkicrypto.Fingerprint(kp.Public)
	if err != nil {
		return nil, err
	}

	s.keyPair = &kp
	s.slot.State = hardware.SlotOccupied
	s.slot.OccupiedKeyID = fp
	s.slot.PinPolicy = pinPolicy
	s.slot.TouchPolicy = touchPolicy
	return kp.Public, nil
}

func (p *Provider) ImportCertificate(ctx context.Context, serial string, tag hardware.SlotTag, certDER []byte, pin string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := p.device(serial)
	if err != nil {
		return err
	}
	if ok, err := p.verifyPINLocked(d, pin); err != nil {
		return err
	} else if !ok {
		return common.NewErrPinVerificationFailed(d.retries)
	}

	s, ok := d.slots[tag]
	if !ok || s.slot.State != hardware.SlotOccupied {
		return common.NewErrNotFound("PivSlot", fmtStringer(fmt.Sprintf("%s/%s", serial, tag)))
	}
	s.certDER = certDER
	return nil
}

func (p *Provider) Sign(ctx context.Context, serial string, tag hardware.SlotTag, message []byte, pin string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := p.device(serial)
	if err != nil {
		return nil, err
	}
	if d.locked {
		return nil, common.NewErrPinLocked()
	}
	if ok, err := p.verifyPINLocked(d, pin); err != nil {
		return nil, err
	} else if !ok {
		return nil, common.NewErrPinVerificationFailed(d.retries)
	}

	s, ok := d.slots[tag]
	if !ok || s.slot.State != hardware.SlotOccupied || s.keyPair == nil {
		return nil, common.NewErrNotFound("PivSlot", fmtStringer(fmt.Sprintf("%s/%s", serial, tag)))
	}
	return pkicrypto.Sign(*s.keyPair, message)
}

func (p *Provider) VerifyPIN(ctx context.Context, serial string, pin string) (hardware.PinVerifyResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := p.device(serial)
	if err != nil {
		return hardware.PinVerifyResult{}, err
	}
	ok, verr := p.verifyPINLocked(d, pin)
	if verr != nil {
		return hardware.PinVerifyResult{}, verr
	}
	return hardware.PinVerifyResult{OK: ok, RetriesRemaining: d.retries, Locked: d.locked}, nil
}

// verifyPINLocked must be called with p.mu held. It is the single place
// Wrong-PIN retry-then-lock behavior is enforced: three
// consecutive wrong PINs lock the device, and any further sign/verify-pin
// call returns PinLocked without consuming another retry.
func (p *Provider) verifyPINLocked(d *deviceState, pin string) (bool, error) {
	if d.locked {
		return false, common.NewErrPinLocked()
	}
	if pin == d.pin {
		d.retries = maxPinRetries
		return true, nil
	}
	d.retries--
	if d.retries <= 0 {
		d.locked = true
		return false, nil
	}
	return false, nil
}

func (p *Provider) ChangePIN(ctx context.Context, serial string, oldPIN string, newPIN string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := p.device(serial)
	if err != nil {
		return err
	}
	ok, verr := p.verifyPINLocked(d, oldPIN)
	if verr != nil {
		return verr
	}
	if !ok {
		return common.NewErrPinVerificationFailed(d.retries)
	}
	d.pin = newPIN
	return nil
}

func (p *Provider) ChangePUK(ctx context.Context, serial string, oldPUK string, newPUK string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := p.device(serial)
	if err != nil {
		return err
	}
	if oldPUK != d.puk {
		return common.NewErrPinVerificationFailed(0)
	}
	d.puk = newPUK
	return nil
}

func (p *Provider) UnblockPIN(ctx context.Context, serial string, puk string, newPIN string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := p.device(serial)
	if err != nil {
		return err
	}
	if puk != d.puk {
		return common.NewErrPinVerificationFailed(0)
	}
	d.pin = newPIN
	d.retries = maxPinRetries
	d.locked = false
	return nil
}

func (p *Provider) ResetPIV(ctx context.Context, serial string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := p.device(serial)
	if err != nil {
		return err
	}
	for tag, s := range d.slots {
		d.slots[tag] = &slotState{slot: hardware.Slot{Serial: serial, Tag: s.slot.Tag, State: hardware.SlotEmpty}}
	}
	d.pin = "123456"
	d.puk = "12345678"
	d.retries = maxPinRetries
	d.locked = false
	return nil
}

// ClearSlot releases a single slot's key binding, the clear_slot transition
// from occupied back to empty, without touching the device's other slots or
// its PIN/PUK state the way ResetPIV does.
func (p *Provider) ClearSlot(ctx context.Context, serial string, tag hardware.SlotTag) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := p.device(serial)
	if err != nil {
		return err
	}
	s, ok := d.slots[tag]
	if !ok || s.slot.State != hardware.SlotOccupied {
		return common.NewErrNotFound("PivSlot", fmtStringer(fmt.Sprintf("%s/%s", serial, tag)))
	}
	d.slots[tag] = &slotState{slot: hardware.Slot{Serial: serial, Tag: tag, State: hardware.SlotEmpty}}
	return nil
}

func (p *Provider) Attest(ctx context.Context, serial string, tag hardware.SlotTag) (hardware.AttestationChain, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, err := p.device(serial)
	if err != nil {
		return hardware.AttestationChain{}, err
	}
	s, ok := d.slots[tag]
	if !ok || s.slot.State != hardware.SlotOccupied {
		return hardware.AttestationChain{}, common.NewErrNotFound("PivSlot", fmtStringer(fmt.Sprintf("%s/%s", serial, tag)))
	}

	pub, err := pkicrypto.Fingerprint(s.keyPair.Public)
	if err != nil {
		return hardware.AttestationChain{}, err
	}
	// A real device returns a vendor-signed X.509 attestation certificate;
	// the mock substitutes a deterministic stand-in binding serial+slot+pubkey
	// fingerprint so tests can assert attestation content without a CA.
	sum := sha256.Sum256([]byte(serial + string(tag) + pub))
	return hardware.AttestationChain{
		Serial:      serial,
		Tag:         tag,
		Certificate: sum[:],
		AttestedAt:  time.Now().UTC(),
	}, nil
}

func deterministicSlotSeed(serial string, tag hardware.SlotTag) seed.Seed {
	return seed.Seed(sha256.Sum256([]byte("mock-hardware-slot-seed/" + serial + "/" + string(tag))))
}

type fmtStringer string

func (f fmtStringer) String() string { return string(f) }

var _ hardware.TokenProvider = (*Provider)(nil)
