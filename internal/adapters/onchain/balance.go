package onchain

// balance.go — optional USDC.e balance pre-check, read straight from the
// token contract so the answer is ground truth rather than an API cache.

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// USDC.e on Polygon.
const defaultUSDCAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

var balanceOfABI abi.ABI

func init() {
	var err error
	balanceOfABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
}

// BalanceReader implements ports.BalanceChecker over an EVM RPC endpoint.
type BalanceReader struct {
	rpc   *ethclient.Client
	token common.Address
}

// NewBalanceReader dials the RPC endpoint. tokenAddress may be empty to use
// the Polygon USDC.e contract.
func NewBalanceReader(rpcURL, tokenAddress string) (*BalanceReader, error) {
	if tokenAddress == "" {
		tokenAddress = defaultUSDCAddress
	}
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain: dial rpc: %w", err)
	}
	return &BalanceReader{rpc: rpc, token: common.HexToAddress(tokenAddress)}, nil
}

// Balance returns the address's USDC balance in whole units.
func (b *BalanceReader) Balance(ctx context.Context, address string) (float64, error) {
	callData, err := balanceOfABI.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("onchain: pack balanceOf: %w", err)
	}

	result, err := b.rpc.CallContract(ctx, ethereum.CallMsg{
		To:   &b.token,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("onchain: call balanceOf: %w", err)
	}

	vals, err := balanceOfABI.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("onchain: unpack balanceOf: %w", err)
	}

	raw := vals[0].(*big.Int)
	bal, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e6)).Float64()
	return bal, nil
}
