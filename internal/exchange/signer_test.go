package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
)

const testPrivateKey = "059c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690"

func TestNewSignerDerivesAddress(t *testing.T) {
	s, err := NewSigner(testPrivateKey, false)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if s.Address().Hex() == "" {
		t.Fatal("expected non-empty derived address")
	}
}

func TestNewSignerAcceptsHexPrefix(t *testing.T) {
	s1, err := NewSigner(testPrivateKey, false)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	s2, err := NewSigner("0x"+testPrivateKey, false)
	if err != nil {
		t.Fatalf("NewSigner with 0x prefix: %v", err)
	}
	if s1.Address() != s2.Address() {
		t.Error("0x-prefixed and bare hex keys should derive the same address")
	}
}

func TestSignL1ActionProducesWellFormedSignature(t *testing.T) {
	s, err := NewSigner(testPrivateKey, false)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	action := orderAction{
		Type: "order",
		Orders: []orderActionOrder{{
			A: 0,
			B: true,
			P: "50000",
			S: "0.01",
			R: false,
			T: orderType{Limit: limitOrderType{Tif: "Gtc"}},
		}},
		Grouping: "na",
	}

	sig, nonce, err := s.SignL1Action(action)
	if err != nil {
		t.Fatalf("SignL1Action: %v", err)
	}
	if nonce <= 0 {
		t.Error("expected positive nonce")
	}
	if len(sig.R) != 66 || sig.R[:2] != "0x" {
		t.Errorf("malformed r: %s", sig.R)
	}
	if len(sig.S) != 66 || sig.S[:2] != "0x" {
		t.Errorf("malformed s: %s", sig.S)
	}
	if sig.V != 27 && sig.V != 28 {
		t.Errorf("v = %d, want 27 or 28", sig.V)
	}
}

func TestSignL1ActionNonceMonotonic(t *testing.T) {
	s, err := NewSigner(testPrivateKey, false)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	action := orderAction{Type: "order"}

	_, n1, err := s.SignL1Action(action)
	if err != nil {
		t.Fatalf("SignL1Action: %v", err)
	}
	_, n2, err := s.SignL1Action(action)
	if err != nil {
		t.Fatalf("SignL1Action: %v", err)
	}
	if n2 < n1 {
		t.Errorf("nonce went backwards: %d -> %d", n1, n2)
	}
}

func TestSignUsdClassTransferShape(t *testing.T) {
	s, err := NewSigner(testPrivateKey, true)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	sig, nonce, chainHex, err := s.SignUsdClassTransfer(decimal.RequireFromString("100"))
	if err != nil {
		t.Fatalf("SignUsdClassTransfer: %v", err)
	}
	if nonce <= 0 {
		t.Error("expected positive nonce")
	}
	if chainHex != "0xa4b1" {
		t.Errorf("chainHex = %s, want 0xa4b1 (42161)", chainHex)
	}
	if sig.V != 27 && sig.V != 28 {
		t.Errorf("v = %d, want 27 or 28", sig.V)
	}
}

func TestSignUsdClassTransferRejectsNothingButDelegatesAmountFormatting(t *testing.T) {
	s, err := NewSigner(testPrivateKey, false)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	// A zero amount is still well-formed at the signer layer; RESTClient is
	// responsible for rejecting non-positive transfer amounts before signing.
	if _, _, _, err := s.SignUsdClassTransfer(decimal.Zero); err != nil {
		t.Errorf("unexpected error signing zero amount: %v", err)
	}
}

func TestFormatDecimalNoScientificNotation(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"50000", "50000"},
		{"0.00000001", "0.00000001"},
		{"50000.100000000", "50000.1"},
		{"0.00000000", "0"},
		{"123.456789012", "123.45678901"},
	}
	for _, c := range cases {
		got := FormatDecimal(decimal.RequireFromString(c.in))
		if got != c.want {
			t.Errorf("FormatDecimal(%s) = %s, want %s", c.in, got, c.want)
		}
		for _, bad := range []string{"e", "E"} {
			if containsRune(got, bad) {
				t.Errorf("FormatDecimal(%s) = %s contains scientific notation", c.in, got)
			}
		}
	}
}

func containsRune(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
