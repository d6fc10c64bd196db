package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Pool is the reserve state of one constant-product pair.
type Pool struct {
	ID                 common.Hash    `json:"id"`
	TokenA             common.Address `json:"token_a"`
	TokenB             common.Address `json:"token_b"`
	LPMint             common.Address `json:"lp_mint"`
	Vault              common.Address `json:"vault"`
	Admin              common.Address `json:"admin"`
	ReserveA           uint64         `json:"reserve_a"`
	ReserveB           uint64         `json:"reserve_b"`
	LPSupply           uint64         `json:"lp_supply"`
	FeeRateBps         uint16         `json:"fee_rate_bps"`
	ProtocolFeeRateBps uint16         `json:"protocol_fee_rate_bps"`
	FeesA              uint64         `json:"fees_a"`
	FeesB              uint64         `json:"fees_b"`
	ProtocolFeesA      uint64         `json:"protocol_fees_a"`
	ProtocolFeesB      uint64         `json:"protocol_fees_b"`
	// HeldProtocolFeesA and HeldProtocolFeesB are protocol fees sitting in
	// the vault outside the reserves until the admin collects them.
	HeldProtocolFeesA uint64 `json:"held_protocol_fees_a"`
	HeldProtocolFeesB uint64 `json:"held_protocol_fees_b"`
	Paused            bool   `json:"paused"`
	CreatedAt         int64  `json:"created_at"`
	LastUpdateTime    int64  `json:"last_update_time"`
}

// PairID derives the immutable identity of an ordered token pair.
func PairID(tokenA, tokenB common.Address) common.Hash {
	return crypto.Keccak256Hash(tokenA.Bytes(), tokenB.Bytes())
}

// VaultAddress is the account holding a pool's reserves.
func VaultAddress(pair common.Hash) common.Address {
	return deriveAddress("vault", pair.Bytes())
}

// LPMintAddress is the token address of a pool's LP shares.
func LPMintAddress(pair common.Hash) common.Address {
	return deriveAddress("lp", pair.Bytes())
}

// EscrowAddress is the account owned by a single order.
func EscrowAddress(orderID string) common.Address {
	return deriveAddress("escrow", []byte(orderID))
}

func deriveAddress(kind string, seed []byte) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(kind), seed))
}

// Reserves returns (reserveIn, reserveOut) for a trade on side.
func (p Pool) Reserves(side Side) (uint64, uint64) {
	if side == SideBuy {
		return p.ReserveA, p.ReserveB
	}
	return p.ReserveB, p.ReserveA
}

// Tokens returns (tokenIn, tokenOut) for a trade on side.
func (p Pool) Tokens(side Side) (common.Address, common.Address) {
	if side == SideBuy {
		return p.TokenA, p.TokenB
	}
	return p.TokenB, p.TokenA
}

// HasLiquidity reports whether the pool has been seeded.
func (p Pool) HasLiquidity() bool {
	return p.LPSupply > 0
}
