package provider

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/cryptoshot/cryptoshot/internal/domain"
)

// balanceOf(address) selector
var erc20BalanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

const evmNativeDecimals = 18

// ethClient is the subset of ethclient.Client the provider needs; tests
// substitute a deterministic fake.
type ethClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ERC20Token describes a token contract whose balance the provider reads at
// the resolved block.
type ERC20Token struct {
	Symbol   string
	Contract common.Address
	Decimals int32
}

// EVM reads an address's balances from an EVM chain at the latest block whose
// timestamp is at or before the requested instant.
type EVM struct {
	name        string
	client      ethClient
	address     common.Address
	nativeAsset domain.Asset
	tokens      []ERC20Token
}

// NewEVM dials the RPC endpoint and creates an on-chain address provider.
// nativeSymbol names the chain's base coin (ETH, AVAX, xDAI, ...).
func NewEVM(name, rpcURL, address, nativeSymbol string, tokens []ERC20Token) (*EVM, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("evm %s: invalid address %q", name, address)
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evm %s: dialing %s: %w", name, rpcURL, err)
	}
	return newEVMWithClient(name, client, address, nativeSymbol, tokens), nil
}

func newEVMWithClient(name string, client ethClient, address, nativeSymbol string, tokens []ERC20Token) *EVM {
	return &EVM{
		name:        name,
		client:      client,
		address:     common.HexToAddress(address),
		nativeAsset: domain.NewAsset(nativeSymbol),
		tokens:      tokens,
	}
}

func (e *EVM) Name() string { return e.name }

// FetchBalances resolves the block for the instant, then reads the native
// balance plus every configured ERC-20 contract at that block.
func (e *EVM) FetchBalances(ctx context.Context, at domain.PointInTime) ([]domain.BalanceEntry, error) {
	block, err := e.blockAtOrBefore(ctx, uint64(at.Unix()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}

	native, err := e.client.BalanceAt(ctx, e.address, block)
	if err != nil {
		return nil, fmt.Errorf("%s: native balance at block %s: %w: %v",
			e.name, block, domain.ErrTransientNetwork, err)
	}

	var entries []domain.BalanceEntry
	if amount := decimal.NewFromBigInt(native, -evmNativeDecimals); amount.IsPositive() {
		entry, err := domain.NewBalanceEntry(e.nativeAsset, amount, e.name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.name, err)
		}
		entries = append(entries, entry)
	}

	for _, token := range e.tokens {
		raw, err := e.tokenBalance(ctx, token, block)
		if err != nil {
			return nil, fmt.Errorf("%s: %s balance: %w", e.name, token.Symbol, err)
		}
		amount := decimal.NewFromBigInt(raw, -token.Decimals)
		if !amount.IsPositive() {
			continue
		}
		entry, err := domain.NewBalanceEntry(domain.NewAsset(token.Symbol), amount, e.name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.name, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (e *EVM) tokenBalance(ctx context.Context, token ERC20Token, block *big.Int) (*big.Int, error) {
	data := append(append([]byte{}, erc20BalanceOfSelector...), common.LeftPadBytes(e.address.Bytes(), 32)...)
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &token.Contract, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientNetwork, err)
	}
	return new(big.Int).SetBytes(out), nil
}

// blockAtOrBefore binary-searches headers for the highest block whose
// timestamp does not exceed target.
func (e *EVM) blockAtOrBefore(ctx context.Context, target uint64) (*big.Int, error) {
	latest, err := e.header(ctx, nil)
	if err != nil {
		return nil, err
	}
	if latest.Time <= target {
		return latest.Number, nil
	}

	genesis, err := e.header(ctx, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	if genesis.Time > target {
		return nil, fmt.Errorf("chain starts at %d, after the requested instant: %w",
			genesis.Time, domain.ErrUnsupportedTimeRange)
	}

	lo, hi := uint64(0), latest.Number.Uint64()
	for lo < hi {
		mid := (lo + hi + 1) / 2
		header, err := e.header(ctx, new(big.Int).SetUint64(mid))
		if err != nil {
			return nil, err
		}
		if header.Time <= target {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return new(big.Int).SetUint64(lo), nil
}

func (e *EVM) header(ctx context.Context, number *big.Int) (*types.Header, error) {
	header, err := e.client.HeaderByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("fetching header: %w: %v", domain.ErrTransientNetwork, err)
	}
	return header, nil
}
