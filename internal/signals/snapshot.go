package signals

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"

	"github.com/wonny/eodsignals/internal/contracts"
)

type snapshotEntry struct {
	Ticker    string  `json:"ticker"`
	Close     float64 `json:"close"`
	Liquidity float64 `json:"liquidity"`
}

// SourceSnapshot fingerprints the generator input: SHA-256 of compact JSON
// [{ticker, close, liquidity}] sorted by ticker
func SourceSnapshot(bars []contracts.DailyBar) string {
	entries := make([]snapshotEntry, 0, len(bars))
	for _, bar := range bars {
		entries = append(entries, snapshotEntry{
			Ticker:    bar.Ticker,
			Close:     finiteOrZero(bar.Close),
			Liquidity: bar.Liquidity(),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Ticker < entries[j].Ticker })

	// entries hold finite floats only, so Marshal cannot fail
	payload, _ := json.Marshal(entries)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
