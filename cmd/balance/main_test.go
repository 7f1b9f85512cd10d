package main

import (
	"bytes"
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Termdamp/MatchMixer/internal/domain/balancer"
)

func TestRun(t *testing.T) {
	Convey("Given the balance command", t, func() {
		var stdout, stderr bytes.Buffer

		Convey("When given four players", func() {
			code := run([]string{"Ann:8", "Bob:6", "Cy:5", "Di:3"}, &stdout, &stderr)

			Convey("Then it prints both teams and the diff", func() {
				So(code, ShouldEqual, 0)
				So(stdout.String(), ShouldContainSubstring, "Team A (11): Ann:8, Di:3")
				So(stdout.String(), ShouldContainSubstring, "Team B (11): Bob:6, Cy:5")
				So(stdout.String(), ShouldContainSubstring, "Diff: 0")
				So(stdout.String(), ShouldNotContainSubstring, "Bench")
			})
		})

		Convey("When asked for JSON with an odd roster", func() {
			code := run([]string{"-json", "A:9", "B:7", "C:5", "D:4", "E:1"}, &stdout, &stderr)

			Convey("Then the result decodes with one benched player", func() {
				So(code, ShouldEqual, 0)
				var res balancer.Result
				So(json.Unmarshal(stdout.Bytes(), &res), ShouldBeNil)
				So(res.Bench, ShouldHaveLength, 1)
			})
		})

		Convey("When a name contains a colon", func() {
			players, err := parsePlayers([]string{"a:b:4"})

			Convey("Then the last colon separates the score", func() {
				So(err, ShouldBeNil)
				So(players[0].Name, ShouldEqual, "a:b")
				So(players[0].Score, ShouldEqual, 4)
			})
		})

		Convey("When arguments are bad", func() {
			So(run(nil, &stdout, &stderr), ShouldEqual, 2)
			So(run([]string{"Ann"}, &stdout, &stderr), ShouldEqual, 2)
			So(run([]string{"Ann:x"}, &stdout, &stderr), ShouldEqual, 2)
			So(run([]string{"-nope"}, &stdout, &stderr), ShouldEqual, 2)
		})

		Convey("When the roster cannot be balanced", func() {
			So(run([]string{"Ann:8"}, &stdout, &stderr), ShouldEqual, 1)
			So(run([]string{"Ann:8", "Bob:11"}, &stdout, &stderr), ShouldEqual, 1)
			So(stderr.String(), ShouldNotBeEmpty)
		})
	})
}
