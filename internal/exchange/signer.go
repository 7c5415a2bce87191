package exchange

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Signer produces the two EIP-712 signature schemes the exchange boundary
// requires: L1 phantom-agent signatures over msgpack-encoded actions
// (order placement, cancellation), and user-signed transfer actions on
// the real chain.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	isMainnet  bool
}

// NewSigner parses a hex-encoded secp256k1 private key (with or without
// 0x prefix) and derives the signing address.
func NewSigner(privateKeyHex string, isMainnet bool) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    crypto.PubkeyToAddress(pk.PublicKey),
		isMainnet:  isMainnet,
	}, nil
}

// Address returns the wallet address derived from the configured key.
func (s *Signer) Address() common.Address {
	return s.address
}

// rsvSignature is the {r, s, v} wire shape the exchange expects in the
// "signature" field of a signed request.
type rsvSignature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

// sign hashes and signs typedData, normalising v to 27/28 as the exchange
// requires (go-ethereum's crypto.Sign returns v in {0,1}).
func (s *Signer) sign(typedData apitypes.TypedData) (rsvSignature, error) {
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return rsvSignature{}, fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return rsvSignature{}, fmt.Errorf("sign typed data: %w", err)
	}

	v := int(sig[64])
	if v < 27 {
		v += 27
	}

	return rsvSignature{
		R: "0x" + common.Bytes2Hex(sig[:32]),
		S: "0x" + common.Bytes2Hex(sig[32:64]),
		V: v,
	}, nil
}

// l1ActionDomain is the fixed EIP-712 domain every phantom-agent action
// signs against. ChainId 1337 is the exchange's dedicated signing chain,
// independent of the chain the underlying asset settles on.
var l1ActionDomain = apitypes.TypedDataDomain{
	Name:              "Exchange",
	Version:           "1",
	ChainId:           (*ethmath.HexOrDecimal256)(big.NewInt(1337)),
	VerifyingContract: "0x0000000000000000000000000000000000000000",
}

var agentTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Agent": {
		{Name: "source", Type: "string"},
		{Name: "connectionId", Type: "bytes32"},
	},
}

// SignL1Action produces a phantom-agent signature over action: msgpack-
// encode the action, append an 8-byte big-endian nonce and a single
// vault-address-present byte (always 0x00, no vault support), keccak256
// the result into a connectionId, then EIP-712-sign an Agent{source,
// connectionId} struct against the fixed L1 domain.
//
// Returns the {r,s,v} signature and the nonce used, which the caller must
// echo back in the request body.
func (s *Signer) SignL1Action(action interface{}) (rsvSignature, int64, error) {
	encoded, err := msgpack.Marshal(action)
	if err != nil {
		return rsvSignature{}, 0, fmt.Errorf("msgpack encode action: %w", err)
	}

	nonce := time.Now().UnixMilli()
	nonceBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(nonceBytes, uint64(nonce))

	data := make([]byte, 0, len(encoded)+8+1)
	data = append(data, encoded...)
	data = append(data, nonceBytes...)
	data = append(data, 0x00) // no vault address

	connectionID := crypto.Keccak256(data)

	source := "b" // testnet
	if s.isMainnet {
		source = "a"
	}

	typedData := apitypes.TypedData{
		Types:       agentTypes,
		PrimaryType: "Agent",
		Domain:      l1ActionDomain,
		Message: apitypes.TypedDataMessage{
			"source":       source,
			"connectionId": connectionID,
		},
	}

	sig, err := s.sign(typedData)
	if err != nil {
		return rsvSignature{}, 0, err
	}
	return sig, nonce, nil
}

var usdClassTransferTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"HyperliquidTransaction:UsdClassTransfer": {
		{Name: "hyperliquidChain", Type: "string"},
		{Name: "amount", Type: "string"},
		{Name: "toPerp", Type: "bool"},
		{Name: "nonce", Type: "uint64"},
	},
}

// arbitrumChainID is the real chain id user-signed transfer actions carry
// in their domain separator (unlike SignL1Action, which always uses 1337).
const arbitrumChainID = 42161

// SignUsdClassTransfer signs a spot->perp balance move. Unlike
// SignL1Action, this is "user-signed": the domain carries the real chain
// id and the message fields are the literal human-readable action, not a
// msgpack hash.
//
// Returns the signature, the nonce used, and the signing chain id (for
// the caller to echo in the request's signatureChainId field).
func (s *Signer) SignUsdClassTransfer(amount decimal.Decimal) (rsvSignature, int64, string, error) {
	nonce := time.Now().UnixMilli()
	chainHex := fmt.Sprintf("0x%x", arbitrumChainID)

	chainName := "Testnet"
	if s.isMainnet {
		chainName = "Mainnet"
	}

	typedData := apitypes.TypedData{
		Types:       usdClassTransferTypes,
		PrimaryType: "HyperliquidTransaction:UsdClassTransfer",
		Domain: apitypes.TypedDataDomain{
			Name:              "HyperliquidSignTransaction",
			Version:           "1",
			ChainId:           (*ethmath.HexOrDecimal256)(big.NewInt(arbitrumChainID)),
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Message: apitypes.TypedDataMessage{
			"hyperliquidChain": chainName,
			"amount":           FormatDecimal(amount),
			"toPerp":           true,
			"nonce":            fmt.Sprintf("%d", nonce),
		},
	}

	sig, err := s.sign(typedData)
	if err != nil {
		return rsvSignature{}, 0, "", err
	}
	return sig, nonce, chainHex, nil
}

// FormatDecimal renders d as a plain decimal string (never scientific
// notation), truncated (not rounded) to at most 8 digits after the decimal
// point with trailing zeros stripped, the wire format the exchange's
// price/size fields expect.
func FormatDecimal(d decimal.Decimal) string {
	s := d.Truncate(8).String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "" || s == "-" {
		s = "0"
	}
	return s
}
