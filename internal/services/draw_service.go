package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// TicketPrice is the cost of one scratch play, in the smallest unit.
	TicketPrice int64 = 5000
	// HouseEdge is the fraction of the ticket price the operator retains in
	// expectation. The same edge applies to demo and real play; the draw
	// logic must never be tuned differently per currency type.
	HouseEdge = 0.12
	// JackpotBase seeds the displayed jackpot counter.
	JackpotBase int64 = 2_000_000

	playCounterTTL = 24 * time.Hour
)

// Prize is one payout tier of the fixed weighted table.
type Prize struct {
	Label  string `json:"label"`
	Payout int64  `json:"payout"`
	Weight int    `json:"weight"`
}

var prizeTable = []Prize{
	{Label: "🎟 ₲1.000", Payout: 1000, Weight: 260},
	{Label: "🎟 ₲3.000", Payout: 3000, Weight: 140},
	{Label: "🎟 ₲5.000", Payout: 5000, Weight: 95},
	{Label: "🎉 ₲15.000", Payout: 15000, Weight: 20},
	{Label: "💠 ₲25.000", Payout: 25000, Weight: 8},
	{Label: "💎 ₲50.000", Payout: 50000, Weight: 3},
	{Label: "👑 ₲100.000", Payout: 100000, Weight: 1},
}

var noPrize = Prize{Label: "💸 ₲0", Payout: 0}

// NoPrizeWeight derives the weight of the losing outcome from the table's
// expected value and the configured house edge, clamped so the game is
// neither a guaranteed loss nor nearly free.
func NoPrizeWeight() int {
	needNoPrizeProb := 1 - (expectedTablePayout()/float64(TicketPrice) - HouseEdge)
	needNoPrizeProb = math.Min(0.80, math.Max(0.05, needNoPrizeProb))
	return int(math.Round(needNoPrizeProb * 1000))
}

func expectedTablePayout() float64 {
	var weighted, total float64
	for _, p := range prizeTable {
		weighted += float64(p.Payout) * float64(p.Weight)
		total += float64(p.Weight)
	}
	return weighted / total
}

// ExpectedPayout is the analytic mean payout of a non-forced draw, used by
// reporting and by the convergence tests.
func ExpectedPayout() float64 {
	var weighted, total float64
	for _, p := range prizeTable {
		weighted += float64(p.Payout) * float64(p.Weight)
		total += float64(p.Weight)
	}
	total += float64(NoPrizeWeight())
	return weighted / total
}

// Draw picks the outcome for the given play of a session. It is a pure
// function of the play index and the injected random source, stateless
// beyond the counter the caller passes in.
//
// The first and third play of a session force a small win. This is a
// deliberate onboarding bias, applied identically in demo and real mode.
func Draw(playIndex int, rng *rand.Rand) Prize {
	if playIndex == 0 || playIndex == 2 {
		small := prizeTable[:3]
		return small[rng.Intn(len(small))]
	}

	bag := make([]Prize, 0, len(prizeTable)+1)
	bag = append(bag, prizeTable...)
	losing := noPrize
	losing.Weight = NoPrizeWeight()
	bag = append(bag, losing)

	var total int
	for _, p := range bag {
		total += p.Weight
	}

	r := rng.Float64() * float64(total)
	for _, p := range bag {
		r -= float64(p.Weight)
		if r <= 0 {
			return p
		}
	}
	return bag[len(bag)-1]
}

// DrawService tracks per-session play counters, the only state the draw
// needs. Counters live in Redis when available so they survive across
// instances; otherwise an in-memory map serves a single process.
type DrawService struct {
	redis *redis.Client

	mu    sync.Mutex
	local map[string]int
}

func NewDrawService(redisClient *redis.Client) *DrawService {
	return &DrawService{
		redis: redisClient,
		local: make(map[string]int),
	}
}

// NextPlayIndex returns the zero-based index of the session's next play and
// advances the counter.
func (s *DrawService) NextPlayIndex(ctx context.Context, sessionID string) (int, error) {
	if s.redis != nil {
		key := fmt.Sprintf("plays:%s", sessionID)
		count, err := s.redis.Incr(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("advance play counter: %w", err)
		}
		if err := s.redis.Expire(ctx, key, playCounterTTL).Err(); err != nil {
			log.Printf("[DRAW] Failed to set TTL on play counter for %s: %v", sessionID, err)
		}
		return int(count - 1), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.local[sessionID]
	s.local[sessionID] = index + 1
	return index, nil
}
