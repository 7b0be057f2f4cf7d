// Package ethutil holds the small amount of on-chain plumbing the engine
// needs: the WETH funds precheck and address list parsing.
package ethutil

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const WETHDecimals = 18

// WETHAddress is mainnet WETH, the payment token both marketplaces settle
// collection offers in.
var WETHAddress = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

var erc20BalanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]

// WETHBalance reads the owner's WETH balance over JSON-RPC and returns it as
// a decimal token amount. A zero token address falls back to mainnet WETH.
func WETHBalance(ctx context.Context, rpcURL string, token, owner common.Address) (decimal.Decimal, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return decimal.Decimal{}, fmt.Errorf("RPC URL missing")
	}
	if (owner == common.Address{}) {
		return decimal.Decimal{}, fmt.Errorf("owner address missing")
	}
	if (token == common.Address{}) {
		token = WETHAddress
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("dial RPC: %w", err)
	}
	defer client.Close()

	data := make([]byte, 0, 4+32)
	data = append(data, erc20BalanceOfSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)

	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("weth balanceOf(%s): %w", owner.Hex(), err)
	}
	if len(out) == 0 {
		return decimal.Decimal{}, fmt.Errorf("weth balanceOf returned empty result")
	}

	bal := new(big.Int).SetBytes(out)
	return decimal.NewFromBigInt(bal, -WETHDecimals), nil
}
