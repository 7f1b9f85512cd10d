package model_test

import (
	"errors"
	"testing"

	model "github.com/Termdamp/MatchMixer/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestNewRoom(t *testing.T) {
	convey.Convey("Given a new room", t, func() {
		room := model.NewRoom("AB12", "Ann", 7)

		convey.Convey("Then it is open, waiting and hosted by its creator", func() {
			convey.So(room.Code, convey.ShouldEqual, "AB12")
			convey.So(room.Host, convey.ShouldEqual, "Ann")
			convey.So(room.IsOpen, convey.ShouldBeTrue)
			convey.So(room.Status, convey.ShouldEqual, model.StatusWaiting)
			convey.So(room.Players, convey.ShouldResemble, []model.Participant{{Name: "Ann", Score: 7, IsHost: true}})
			convey.So(room.HostIndex(), convey.ShouldEqual, 0)
		})

		convey.Convey("When it is cloned and the clone is mutated", func() {
			clone := room.Clone()
			clone.Players[0].Name = "Bob"
			clone.Players = append(clone.Players, model.Participant{Name: "Cy", Score: 2})

			convey.Convey("Then the original is untouched", func() {
				convey.So(room.Players, convey.ShouldHaveLength, 1)
				convey.So(room.Players[0].Name, convey.ShouldEqual, "Ann")
			})
		})

		convey.Convey("When looking players up", func() {
			room.Players = append(room.Players, model.Participant{Name: "Bob", Score: 3})

			convey.So(room.IndexOf("Bob"), convey.ShouldEqual, 1)
			convey.So(room.IndexOf("Zed"), convey.ShouldEqual, -1)
		})
	})

	convey.Convey("Cloning a nil room yields nil", t, func() {
		var room *model.Room
		convey.So(room.Clone(), convey.ShouldBeNil)
	})
}

func TestValidateParticipant(t *testing.T) {
	cases := []struct {
		name  string
		score int
		ok    bool
	}{
		{"Ann", 1, true},
		{"Ann", 10, true},
		{"", 5, false},
		{"   ", 5, false},
		{"Ann", 0, false},
		{"Ann", 11, false},
	}
	for _, tc := range cases {
		err := model.ValidateParticipant(tc.name, tc.score)
		if tc.ok && err != nil {
			t.Errorf("ValidateParticipant(%q, %d) = %v, want nil", tc.name, tc.score, err)
		}
		if !tc.ok && !errors.Is(err, model.ErrInvalidParticipant) {
			t.Errorf("ValidateParticipant(%q, %d) = %v, want ErrInvalidParticipant", tc.name, tc.score, err)
		}
	}
}

func TestValidCode(t *testing.T) {
	for code, want := range map[string]bool{
		"AB12":  true,
		"ZZZZ":  true,
		"0000":  true,
		"ab12":  false,
		"AB1":   false,
		"AB123": false,
		"AB-1":  false,
	} {
		if got := model.ValidCode(code); got != want {
			t.Errorf("ValidCode(%q) = %v, want %v", code, got, want)
		}
	}
}
