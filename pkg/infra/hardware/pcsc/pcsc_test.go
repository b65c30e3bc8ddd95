package pcsc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/hardware"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/hardware/pcsc"
)

// fakeTransport answers every Transmit with the success status word 0x9000,
// the same minimal shape a real PC/SC driver presents to Provider.
type fakeTransport struct {
	devices []hardware.Device
	calls   []byte // INS bytes seen, in call order
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (f *fakeTransport) Devices(ctx context.Context) ([]hardware.Device, error) {
	return f.devices, nil
}

func (f *fakeTransport) Transmit(ctx context.Context, serial string, apdu []byte) ([]byte, byte, byte, error) {
	f.calls = append(f.calls, apdu[1])
	return nil, 0x90, 0x00, nil
}

func TestListDevices_DelegatesToTransport(t *testing.T) {
	ft := newFakeTransport()
	ft.devices = []hardware.Device{{Serial: "12345678", Firmware: "5.7.1"}}
	p := pcsc.New(ft)

	devices, err := p.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "12345678", devices[0].Serial)
}

func TestClearSlot_SelectsPIVThenIssuesDeleteAsymmetric(t *testing.T) {
	ft := newFakeTransport()
	p := pcsc.New(ft)

	err := p.ClearSlot(context.Background(), "12345678", hardware.SlotAuthentication)
	require.NoError(t, err)

	// SELECT (0xA4) happens before the delete (0xF8).
	require.Equal(t, []byte{0xA4, 0xF8}, ft.calls)
}

func TestClearSlot_PropagatesDeviceFailureStatus(t *testing.T) {
	failing := &statusOverrideTransport{fakeTransport: newFakeTransport(), failOn: 0xF8, sw1: 0x6A, sw2: 0x82}
	p := pcsc.New(failing)

	err := p.ClearSlot(context.Background(), "12345678", hardware.SlotAuthentication)
	require.Error(t, err)
}

func TestResetPIV_IssuesFactoryResetAPDU(t *testing.T) {
	ft := newFakeTransport()
	p := pcsc.New(ft)

	require.NoError(t, p.ResetPIV(context.Background(), "12345678"))
	require.Contains(t, ft.calls, byte(0xFB))
}

func TestVerifyPIN_ReturnsRetriesRemainingOnWrongPIN(t *testing.T) {
	ft := &retryCountingTransport{}
	p := pcsc.New(ft)

	res, err := p.VerifyPIN(context.Background(), "12345678", "000000")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, 2, res.RetriesRemaining)
}

// statusOverrideTransport fails one specific instruction byte with a chosen
// status word while delegating every other APDU to the embedded fake.
type statusOverrideTransport struct {
	*fakeTransport
	failOn   byte
	sw1, sw2 byte
}

func (s *statusOverrideTransport) Transmit(ctx context.Context, serial string, apdu []byte) ([]byte, byte, byte, error) {
	s.calls = append(s.calls, apdu[1])
	if apdu[1] == s.failOn {
		return nil, s.sw1, s.sw2, nil
	}
	return nil, 0x90, 0x00, nil
}

// retryCountingTransport simulates a PIV card reporting "2 retries left"
// (SW=63C2) to a VERIFY with the wrong PIN.
type retryCountingTransport struct{}

func (r *retryCountingTransport) Devices(ctx context.Context) ([]hardware.Device, error) {
	return nil, nil
}

func (r *retryCountingTransport) Transmit(ctx context.Context, serial string, apdu []byte) ([]byte, byte, byte, error) {
	if apdu[1] == 0x20 { // VERIFY
		return nil, 0x63, 0xC2, nil
	}
	return nil, 0x90, 0x00, nil
}
