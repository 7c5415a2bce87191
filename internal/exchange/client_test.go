package exchange

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"gridbot/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRESTClientDryRunShortCircuitsPlaceLimitOrder(t *testing.T) {
	signer, err := NewSigner(testPrivateKey, false)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	c := NewRESTClient("https://example.invalid", signer, signer.Address().Hex(), true, testLogger())

	id, err := c.PlaceLimitOrder(context.Background(), "BTC", 0, types.Buy, decimal.NewFromInt(50000), decimal.RequireFromString("0.01"))
	if err != nil {
		t.Fatalf("PlaceLimitOrder in dry-run: %v", err)
	}
	if id != 0 {
		t.Errorf("dry-run order id = %d, want 0", id)
	}
}

func TestRESTClientDryRunShortCircuitsCancelOrder(t *testing.T) {
	signer, err := NewSigner(testPrivateKey, false)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	c := NewRESTClient("https://example.invalid", signer, signer.Address().Hex(), true, testLogger())

	ok, err := c.CancelOrder(context.Background(), 0, 123)
	if err != nil {
		t.Fatalf("CancelOrder in dry-run: %v", err)
	}
	if !ok {
		t.Error("dry-run cancel should report success")
	}
}

func TestRESTClientDryRunShortCircuitsTransfer(t *testing.T) {
	signer, err := NewSigner(testPrivateKey, false)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	c := NewRESTClient("https://example.invalid", signer, signer.Address().Hex(), true, testLogger())

	if err := c.TransferSpotToPerps(context.Background(), decimal.NewFromInt(100)); err != nil {
		t.Fatalf("TransferSpotToPerps in dry-run: %v", err)
	}
}

func TestRESTClientRejectsNonPositiveOrderInputs(t *testing.T) {
	signer, err := NewSigner(testPrivateKey, false)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	c := NewRESTClient("https://example.invalid", signer, signer.Address().Hex(), false, testLogger())

	if _, err := c.PlaceLimitOrder(context.Background(), "BTC", 0, types.Buy, decimal.Zero, decimal.RequireFromString("0.01")); err == nil {
		t.Error("expected error for zero price")
	}
	if _, err := c.PlaceLimitOrder(context.Background(), "BTC", 0, types.Buy, decimal.NewFromInt(50000), decimal.Zero); err == nil {
		t.Error("expected error for zero size")
	}
}

func TestRESTClientRejectsNonPositiveTransferAmount(t *testing.T) {
	signer, err := NewSigner(testPrivateKey, false)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	c := NewRESTClient("https://example.invalid", signer, signer.Address().Hex(), false, testLogger())

	if err := c.TransferSpotToPerps(context.Background(), decimal.Zero); err == nil {
		t.Error("expected error for zero transfer amount")
	}
}
