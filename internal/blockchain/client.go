package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
)

const transferGasLimit = 21000

// Client sends native coin transfers through an Ethereum JSON-RPC node.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// Dial connects to the node and queries its chain ID for EIP-155 signing.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum node: %w", err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	return &Client{eth: eth, chainID: chainID}, nil
}

// SendNative signs and broadcasts a plain value transfer, returning the
// transaction hash.
func (c *Client) SendNative(ctx context.Context, privateKeyHex, receiverAddress, ethAmount string) (string, error) {
	if !common.IsHexAddress(receiverAddress) {
		return "", fmt.Errorf("invalid receiver address %q", receiverAddress)
	}
	wei, err := WeiFromEther(ethAmount)
	if err != nil {
		return "", err
	}

	priv, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("parse signing key: %w", err)
	}
	sender := crypto.PubkeyToAddress(priv.PublicKey)

	nonce, err := c.eth.PendingNonceAt(ctx, sender)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	to := common.HexToAddress(receiverAddress)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    wei,
		Gas:      transferGasLimit,
		GasPrice: gasPrice,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), priv)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("broadcast transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// WeiFromEther parses a decimal ether amount ("0.05") into wei.
func WeiFromEther(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	f, ok := new(big.Float).SetString(amount)
	if !ok {
		return nil, fmt.Errorf("invalid ether amount %q", amount)
	}
	if f.Sign() <= 0 {
		return nil, errors.New("ether amount must be positive")
	}

	wei, _ := new(big.Float).Mul(f, big.NewFloat(params.Ether)).Int(nil)
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("ether amount %q too small", amount)
	}
	return wei, nil
}
