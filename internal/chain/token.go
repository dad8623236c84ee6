package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/holdgate/holdgate/internal/config"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// ErrInvalidAddress is returned for wallet strings that are not 20-byte hex addresses.
var ErrInvalidAddress = errors.New("invalid address")

// ContractCaller is the subset of ethclient.Client the token reader needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dial connects to an EVM JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing chain rpc: %w", err)
	}
	return client, nil
}

// TokenReader reads balances and supply of one ERC-20 token, scaled to whole tokens.
// It is both the balance oracle and the supply oracle of the credit engine.
type TokenReader struct {
	caller   ContractCaller
	token    common.Address
	scale    *big.Float
	excluded []common.Address
	abi      abi.ABI
}

func NewTokenReader(caller ContractCaller, cfg config.ChainConfig) (*TokenReader, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing erc20 abi: %w", err)
	}
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, fmt.Errorf("token %q: %w", cfg.TokenAddress, ErrInvalidAddress)
	}

	excluded := make([]common.Address, 0, len(cfg.ExcludedWallets))
	for _, w := range cfg.ExcludedWallets {
		if !common.IsHexAddress(w) {
			return nil, fmt.Errorf("excluded wallet %q: %w", w, ErrInvalidAddress)
		}
		excluded = append(excluded, common.HexToAddress(w))
	}

	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(cfg.TokenDecimals)), nil))

	return &TokenReader{
		caller:   caller,
		token:    common.HexToAddress(cfg.TokenAddress),
		scale:    scale,
		excluded: excluded,
		abi:      parsed,
	}, nil
}

// Balance returns the token quantity held by wallet.
func (t *TokenReader) Balance(ctx context.Context, wallet string) (float64, error) {
	if !common.IsHexAddress(wallet) {
		return 0, fmt.Errorf("wallet %q: %w", wallet, ErrInvalidAddress)
	}
	raw, err := t.balanceOf(ctx, common.HexToAddress(wallet))
	if err != nil {
		return 0, err
	}
	return t.toUnits(raw), nil
}

// TotalSupply returns the token's total supply.
func (t *TokenReader) TotalSupply(ctx context.Context) (float64, error) {
	raw, err := t.totalSupply(ctx)
	if err != nil {
		return 0, err
	}
	return t.toUnits(raw), nil
}

// CirculatingSupply returns total supply minus the balances of the excluded wallets.
func (t *TokenReader) CirculatingSupply(ctx context.Context) (float64, error) {
	total, err := t.totalSupply(ctx)
	if err != nil {
		return 0, err
	}

	circulating := new(big.Int).Set(total)
	for _, w := range t.excluded {
		bal, err := t.balanceOf(ctx, w)
		if err != nil {
			return 0, fmt.Errorf("excluded wallet %s: %w", w.Hex(), err)
		}
		circulating.Sub(circulating, bal)
	}

	if circulating.Sign() <= 0 {
		return 0, fmt.Errorf("circulating supply is not positive (total %s)", total)
	}
	return t.toUnits(circulating), nil
}

func (t *TokenReader) balanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *TokenReader) totalSupply(ctx context.Context) (*big.Int, error) {
	return t.call(ctx, "totalSupply")
}

func (t *TokenReader) call(ctx context.Context, method string, args ...any) (*big.Int, error) {
	data, err := t.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}

	result, err := t.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &t.token,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}

	values, err := t.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected %s result length %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type %T", method, values[0])
	}
	return v, nil
}

func (t *TokenReader) toUnits(raw *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), t.scale).Float64()
	return f
}
