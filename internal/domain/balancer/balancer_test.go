package balancer

import (
	"math/rand"
	"reflect"
	"strconv"
	"testing"

	"github.com/Termdamp/MatchMixer/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func players(scores ...int) []model.Participant {
	out := make([]model.Participant, len(scores))
	for i, s := range scores {
		out[i] = model.Participant{Name: string(rune('A' + i)), Score: s}
	}
	return out
}

func names(ps []model.Participant) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

func TestBalance_Scenarios(t *testing.T) {
	Convey("Given two players 10 and 1", t, func() {
		res, err := Balance(players(10, 1))

		Convey("Then each team holds one player and the diff is 9", func() {
			So(err, ShouldBeNil)
			So(res.TeamA, ShouldHaveLength, 1)
			So(res.TeamB, ShouldHaveLength, 1)
			So(names(res.TeamA), ShouldResemble, []string{"A"})
			So(res.ScoreA, ShouldEqual, 10)
			So(res.ScoreB, ShouldEqual, 1)
			So(res.Diff, ShouldEqual, 9)
			So(res.Bench, ShouldBeEmpty)
		})
	})

	Convey("Given players 8, 8, 2, 2", t, func() {
		res, err := Balance(players(8, 8, 2, 2))

		Convey("Then the greedy walk pairs a high with a low on each side", func() {
			So(err, ShouldBeNil)
			So(names(res.TeamA), ShouldResemble, []string{"A", "C"})
			So(names(res.TeamB), ShouldResemble, []string{"B", "D"})
			So(res.ScoreA, ShouldEqual, 10)
			So(res.ScoreB, ShouldEqual, 10)
			So(res.Diff, ShouldEqual, 0)
		})
	})

	Convey("Given five players 10, 8, 6, 4, 2", t, func() {
		// Benching A leaves 8,6,4,2 -> {8,2} vs {6,4}, diff 0; C and E also
		// reach 0 but come later in input order.
		res, err := Balance(players(10, 8, 6, 4, 2))

		Convey("Then the first zero-diff candidate is benched", func() {
			So(err, ShouldBeNil)
			So(names(res.Bench), ShouldResemble, []string{"A"})
			So(names(res.TeamA), ShouldResemble, []string{"B", "E"})
			So(names(res.TeamB), ShouldResemble, []string{"C", "D"})
			So(res.ScoreA, ShouldEqual, 10)
			So(res.ScoreB, ShouldEqual, 10)
			So(res.Diff, ShouldEqual, 0)
		})
	})

	Convey("Given equal scores", t, func() {
		res, err := Balance(players(5, 5, 5, 5))

		Convey("Then ties keep input order", func() {
			So(err, ShouldBeNil)
			So(names(res.TeamA), ShouldResemble, []string{"A", "C"})
			So(names(res.TeamB), ShouldResemble, []string{"B", "D"})
		})
	})
}

func TestBalance_Preconditions(t *testing.T) {
	Convey("Given fewer than two players", t, func() {
		for _, in := range [][]model.Participant{nil, players(), players(7)} {
			_, err := Balance(in)
			So(err, ShouldEqual, ErrInsufficientPlayers)
		}
	})

	Convey("Given a caller's slice", t, func() {
		in := players(1, 9, 4)
		orig := append([]model.Participant(nil), in...)
		_, err := Balance(in)

		Convey("Then Balance leaves it untouched", func() {
			So(err, ShouldBeNil)
			So(in, ShouldResemble, orig)
		})
	})
}

func TestBalance_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7)) //nolint:gosec // reproducible inputs
	for round := 0; round < 300; round++ {
		n := 2 + rng.Intn(11)
		scores := make([]int, n)
		for i := range scores {
			scores[i] = 1 + rng.Intn(10)
		}
		in := players(scores...)

		res, err := Balance(in)
		if err != nil {
			t.Fatalf("round %d: Balance(%v) error: %v", round, scores, err)
		}

		if got := len(res.TeamA) + len(res.TeamB) + len(res.Bench); got != n {
			t.Fatalf("round %d: %d players placed, want %d", round, got, n)
		}
		if wantBench := n % 2; len(res.Bench) != wantBench {
			t.Fatalf("round %d: bench size %d for n=%d", round, len(res.Bench), n)
		}
		if len(res.TeamA) != len(res.TeamB) {
			t.Fatalf("round %d: team sizes %d and %d", round, len(res.TeamA), len(res.TeamB))
		}
		if res.ScoreA != sum(res.TeamA) || res.ScoreB != sum(res.TeamB) {
			t.Fatalf("round %d: scores do not match members", round)
		}
		if res.Diff != abs(res.ScoreA-res.ScoreB) {
			t.Fatalf("round %d: diff %d for %d vs %d", round, res.Diff, res.ScoreA, res.ScoreB)
		}

		again, _ := Balance(in)
		if !reflect.DeepEqual(res, again) {
			t.Fatalf("round %d: Balance is not deterministic", round)
		}

		if n%2 == 1 {
			for i := range in {
				rest := append(append([]model.Participant(nil), in[:i]...), in[i+1:]...)
				if d := split(rest).Diff; d < res.Diff {
					t.Fatalf("round %d: benching %s gives diff %d < %d", round, in[i].Name, d, res.Diff)
				}
			}
		}
	}
}

func sum(ps []model.Participant) int {
	total := 0
	for _, p := range ps {
		total += p.Score
	}
	return total
}

func BenchmarkBalance(b *testing.B) {
	in := make([]model.Participant, 21)
	for i := range in {
		in[i] = model.Participant{Name: "p" + strconv.Itoa(i), Score: 1 + i%10}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Balance(in)
	}
}
