// Package leaderboard ranks the live account against a set of simulated
// peer traders. There is no real multi-user backend; peers are seeded
// with a base value and jittered on every recompute so the board moves.
package leaderboard

import (
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/paperhands/cryptosim/types"
)

// Peer is one simulated trader.
type Peer struct {
	Email    string
	Base     decimal.Decimal
	Jitter   decimal.Decimal // upper bound of the random spread added to Base
	IsFriend bool            // friend by default, independent of the account's list
}

// DefaultPeers mirrors the original simulated trader roster.
func DefaultPeers() []Peer {
	return []Peer{
		{Email: "trader1@example.com", Base: decimal.NewFromInt(12500), Jitter: decimal.NewFromInt(5000), IsFriend: true},
		{Email: "crypto_king@example.com", Base: decimal.NewFromInt(15000), Jitter: decimal.NewFromInt(7000)},
		{Email: "hodler99@example.com", Base: decimal.NewFromInt(8000), Jitter: decimal.NewFromInt(3000)},
		{Email: "satoshi_fan@example.com", Base: decimal.NewFromInt(20000), Jitter: decimal.NewFromInt(10000)},
		{Email: "altcoin_lover@example.com", Base: decimal.NewFromInt(5000), Jitter: decimal.NewFromInt(2000), IsFriend: true},
	}
}

// Ranker produces leaderboard snapshots.
type Ranker struct {
	peers []Peer
	rng   *rand.Rand
}

// NewRanker builds a ranker over the given peers. A nil source gets a
// time-seeded one; tests inject a fixed seed.
func NewRanker(peers []Peer, src rand.Source) *Ranker {
	r := &Ranker{peers: peers}
	if src != nil {
		r.rng = rand.New(src)
	}
	return r
}

// Rank recomputes the full board: the live account entry plus all peers,
// sorted descending on total value with a stable sort (ties keep insertion
// order: the account first, then roster order), ranks assigned 1..N.
//
// Pure with respect to engine state; safe to re-run on every tick.
func (r *Ranker) Rank(email string, totalValue decimal.Decimal, friends []string) []types.LeaderboardEntry {
	entries := make([]types.LeaderboardEntry, 0, len(r.peers)+1)
	entries = append(entries, types.LeaderboardEntry{
		Email:      email,
		TotalValue: totalValue,
	})

	isFriend := func(peer Peer) bool {
		if peer.IsFriend {
			return true
		}
		for _, f := range friends {
			if f == peer.Email {
				return true
			}
		}
		return false
	}

	for _, peer := range r.peers {
		entries = append(entries, types.LeaderboardEntry{
			Email:      peer.Email,
			TotalValue: peer.Base.Add(peer.Jitter.Mul(r.random())),
			IsFriend:   isFriend(peer),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalValue.GreaterThan(entries[j].TotalValue)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// FilterFriends keeps friend entries plus the account's own row. Ranks are
// preserved from the full board, matching the original friends-only view.
func FilterFriends(entries []types.LeaderboardEntry, email string) []types.LeaderboardEntry {
	out := make([]types.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsFriend || e.Email == email {
			out = append(out, e)
		}
	}
	return out
}

func (r *Ranker) random() decimal.Decimal {
	if r.rng != nil {
		return decimal.NewFromFloat(r.rng.Float64())
	}
	return decimal.NewFromFloat(rand.Float64())
}
