// Package balancer splits participants into two teams of near-equal total score.
package balancer

import (
	"errors"
	"sort"

	"github.com/Termdamp/MatchMixer/internal/domain/model"
)

// ErrInsufficientPlayers is returned when fewer than two participants are given.
var ErrInsufficientPlayers = errors.New("at least two players are required")

// minPlayers is the smallest group Balance accepts.
const minPlayers = 2

// Result is a two-team partition. Bench holds the player left out of an
// odd-sized group and is empty otherwise.
type Result struct {
	TeamA  []model.Participant `json:"teamA"`
	TeamB  []model.Participant `json:"teamB"`
	ScoreA int                 `json:"scoreA"`
	ScoreB int                 `json:"scoreB"`
	Bench  []model.Participant `json:"bench"`
	Diff   int                 `json:"diff"`
}

// Balance partitions players into two teams. For an odd count every player is
// tried on the bench and the first one whose split has the smallest diff is
// kept. The result depends only on players and their order.
func Balance(players []model.Participant) (Result, error) {
	if len(players) < minPlayers {
		return Result{}, ErrInsufficientPlayers
	}

	if len(players)%2 == 0 {
		res := split(players)
		res.Bench = []model.Participant{}
		return res, nil
	}

	var (
		best      Result
		benchIdx  = -1
		remaining = make([]model.Participant, 0, len(players)-1)
	)
	for i := range players {
		remaining = remaining[:0]
		remaining = append(remaining, players[:i]...)
		remaining = append(remaining, players[i+1:]...)

		res := split(remaining)
		if benchIdx < 0 || res.Diff < best.Diff {
			best, benchIdx = res, i
		}
	}
	best.Bench = []model.Participant{players[benchIdx]}
	return best, nil
}

// split walks players by descending score and feeds the weaker team, ties
// going to A, without letting either team pass n/2 members. With an odd n the
// last player falls through to B.
func split(players []model.Participant) Result {
	sorted := append([]model.Participant(nil), players...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	capacity := len(sorted) / 2
	res := Result{
		TeamA: make([]model.Participant, 0, capacity+1),
		TeamB: make([]model.Participant, 0, capacity+1),
	}
	for _, p := range sorted {
		aFull := len(res.TeamA) >= capacity
		bFull := len(res.TeamB) >= capacity
		if !aFull && (bFull || res.ScoreA <= res.ScoreB) {
			res.TeamA = append(res.TeamA, p)
			res.ScoreA += p.Score
			continue
		}
		res.TeamB = append(res.TeamB, p)
		res.ScoreB += p.Score
	}
	res.Diff = abs(res.ScoreA - res.ScoreB)
	return res
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
