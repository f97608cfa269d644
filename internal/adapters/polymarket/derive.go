package polymarket

// derive.go — CLOB L1 authentication: sign an EIP-712 attestation with the
// operator's Polygon key and exchange it for API credentials. Used as the
// best-effort auto-provisioning path when a user has none stored.

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/polycopy/engine/internal/domain"
)

const (
	polygonChainID = int64(137)

	clobDomainName    = "ClobAuthDomain"
	clobDomainVersion = "1"
	clobAuthMessage   = "This message attests that I control the given wallet"
)

// EIP-712 type hashes, computed once.
var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)",
	))
	clobAuthTypeHash = crypto.Keccak256Hash([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)",
	))
)

// Signer holds the operator key that signs L1 attestations and replica orders.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex private key (no 0x prefix).
func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("polymarket: invalid signing key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the operator wallet address.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// DeriveCredentials performs L1 auth against GET /auth/derive-api-key and
// returns the resulting API credentials.
func (c *Client) DeriveCredentials(ctx context.Context, signer *Signer) (domain.Credentials, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := signer.signClobAuth(ts, "0")
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("polymarket: sign l1: %w", err)
	}

	url := fmt.Sprintf("%s/auth/derive-api-key", c.clobBase)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("polymarket: derive-api-key request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", signer.address.Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_NONCE", "0")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("polymarket: derive-api-key: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return domain.Credentials{}, fmt.Errorf("polymarket: derive-api-key status %d: %s", resp.StatusCode, body)
	}

	var raw struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.Credentials{}, fmt.Errorf("polymarket: parse creds: %w", err)
	}
	return domain.Credentials{
		APIKey:     raw.APIKey,
		Secret:     raw.Secret,
		Passphrase: raw.Passphrase,
	}, nil
}

// clobAuthDomainSeparator computes the EIP-712 domain separator for ClobAuthDomain.
func clobAuthDomainSeparator() common.Hash {
	var buf []byte
	buf = append(buf, eip712DomainTypeHash.Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainName)).Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainVersion)).Bytes()...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(polygonChainID).Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

// signClobAuth signs the ClobAuth typed data for L1 auth.
func (s *Signer) signClobAuth(timestamp, nonce string) (string, error) {
	nonceInt, ok := new(big.Int).SetString(nonce, 10)
	if !ok {
		return "", fmt.Errorf("invalid nonce: %s", nonce)
	}

	var structBuf []byte
	structBuf = append(structBuf, clobAuthTypeHash.Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(s.address.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(timestamp)).Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(nonceInt.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(clobAuthMessage)).Bytes()...)
	structHash := crypto.Keccak256Hash(structBuf)

	var rawBuf []byte
	rawBuf = append(rawBuf, 0x19, 0x01)
	rawBuf = append(rawBuf, clobAuthDomainSeparator().Bytes()...)
	rawBuf = append(rawBuf, structHash.Bytes()...)
	msgHash := crypto.Keccak256Hash(rawBuf)

	sig, err := crypto.Sign(msgHash.Bytes(), s.key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return "0x" + fmt.Sprintf("%x", sig), nil
}
