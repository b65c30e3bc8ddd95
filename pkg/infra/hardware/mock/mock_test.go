package mock_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/hardware"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pkicrypto"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/infra/hardware/mock"
)

func TestGenerateInSlot_SlotOccupied(t *testing.T) {
	ctx := context.Background()
	p := mock.New()
	p.Register("12345678", "5.7.1", "usb-a")

	_, err := p.GenerateInSlot(ctx, "12345678", hardware.SlotSignature, pkicrypto.AlgorithmEd25519, hardware.PinPolicyOnce, hardware.TouchPolicyAlways)
	require.NoError(t, err)

	_, err = p.GenerateInSlot(ctx, "12345678", hardware.SlotSignature, pkicrypto.AlgorithmEd25519, hardware.PinPolicyOnce, hardware.TouchPolicyAlways)
	require.Error(t, err)
	require.True(t, common.Is(err, "SlotOccupied"))
}

func TestGenerateInSlot_Deterministic(t *testing.T) {
	ctx := context.Background()
	p1 := mock.New()
	p1.Register("11111111", "5.7.1", "usb-a")
	pub1, err := p1.GenerateInSlot(ctx, "11111111", hardware.SlotAuthentication, pkicrypto.AlgorithmEd25519, hardware.PinPolicyOnce, hardware.TouchPolicyNever)
	require.NoError(t, err)

	p2 := mock.New()
	p2.Register("11111111", "5.7.1", "usb-a")
	pub2, err := p2.GenerateInSlot(ctx, "11111111", hardware.SlotAuthentication, pkicrypto.AlgorithmEd25519, hardware.PinPolicyOnce, hardware.TouchPolicyNever)
	require.NoError(t, err)

	fp1, err := pkicrypto.Fingerprint(pub1)
	require.NoError(t, err)
	fp2, err := pkicrypto.Fingerprint(pub2)
	require.NoError(t, err)
	require.Equal(t, fp1, fp2)
}

// TestVerifyPIN_LocksAfterThreeFailures: a wrong PIN three times in a row
// locks the device, and Sign then reports PinLocked rather than consuming
// further retries.
func TestVerifyPIN_LocksAfterThreeFailures(t *testing.T) {
	ctx := context.Background()
	p := mock.New()
	p.Register("12345678", "5.7.1", "usb-a")

	res, err := p.VerifyPIN(ctx, "12345678", "000000")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, 2, res.RetriesRemaining)

	res, err = p.VerifyPIN(ctx, "12345678", "000000")
	require.NoError(t, err)
	require.Equal(t, 1, res.RetriesRemaining)

	res, err = p.VerifyPIN(ctx, "12345678", "000000")
	require.NoError(t, err)
	require.True(t, res.Locked)

	_, err = p.GenerateInSlot(ctx, "12345678", hardware.SlotSignature, pkicrypto.AlgorithmEd25519, hardware.PinPolicyOnce, hardware.TouchPolicyAlways)
	require.NoError(t, err)
	_, err = p.Sign(ctx, "12345678", hardware.SlotSignature, []byte("message"), "123456")
	require.Error(t, err)
}

func TestClearSlot_ReleasesBindingWithoutTouchingOtherSlots(t *testing.T) {
	ctx := context.Background()
	p := mock.New()
	p.Register("12345678", "5.7.1", "usb-a")

	_, err := p.GenerateInSlot(ctx, "12345678", hardware.SlotSignature, pkicrypto.AlgorithmEd25519, hardware.PinPolicyOnce, hardware.TouchPolicyAlways)
	require.NoError(t, err)
	_, err = p.GenerateInSlot(ctx, "12345678", hardware.SlotAuthentication, pkicrypto.AlgorithmEd25519, hardware.PinPolicyOnce, hardware.TouchPolicyAlways)
	require.NoError(t, err)

	require.NoError(t, p.ClearSlot(ctx, "12345678", hardware.SlotSignature))

	// The cleared slot accepts a fresh key again...
	pub, err := p.GenerateInSlot(ctx, "12345678", hardware.SlotSignature, pkicrypto.AlgorithmEd25519, hardware.PinPolicyOnce, hardware.TouchPolicyAlways)
	require.NoError(t, err)
	require.NotNil(t, pub)

	// ...while the untouched slot is still occupied by its original key.
	_, err = p.GenerateInSlot(ctx, "12345678", hardware.SlotAuthentication, pkicrypto.AlgorithmEd25519, hardware.PinPolicyOnce, hardware.TouchPolicyAlways)
	require.Error(t, err)
	require.True(t, common.Is(err, "SlotOccupied"))
}

func TestClearSlot_EmptySlotErrors(t *testing.T) {
	ctx := context.Background()
	p := mock.New()
	p.Register("12345678", "5.7.1", "usb-a")

	err := p.ClearSlot(ctx, "12345678", hardware.SlotSignature)
	require.Error(t, err)
	require.True(t, common.Is(err, "NotFound"))
}

func TestResetPIV_ClearsSlotsAndUnlocksPIN(t *testing.T) {
	ctx := context.Background()
	p := mock.New()
	p.Register("12345678", "5.7.1", "usb-a")

	_, err := p.GenerateInSlot(ctx, "12345678", hardware.SlotSignature, pkicrypto.AlgorithmEd25519, hardware.PinPolicyOnce, hardware.TouchPolicyAlways)
	require.NoError(t, err)

	require.NoError(t, p.ResetPIV(ctx, "12345678"))

	pub, err := p.GenerateInSlot(ctx, "12345678", hardware.SlotSignature, pkicrypto.AlgorithmEd25519, hardware.PinPolicyOnce, hardware.TouchPolicyAlways)
	require.NoError(t, err)
	require.NotNil(t, pub)
}
