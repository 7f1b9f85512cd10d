package lobby_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Termdamp/MatchMixer/internal/adapters/repository"
	"github.com/Termdamp/MatchMixer/internal/domain/model"
	"github.com/Termdamp/MatchMixer/internal/lobby"
)

type watchResult struct {
	ev  lobby.Event
	err error
}

// watchAsync starts a Watch and returns its result channel and the events seen.
func watchAsync(ctx context.Context, c *lobby.Coordinator, code, me string) (<-chan watchResult, func() []lobby.EventKind) {
	var (
		mu    sync.Mutex
		kinds []lobby.EventKind
	)
	out := make(chan watchResult, 1)
	go func() {
		ev, err := lobby.Watch(ctx, c, code, me, func(ev lobby.Event) {
			mu.Lock()
			kinds = append(kinds, ev.Kind)
			mu.Unlock()
		})
		out <- watchResult{ev, err}
	}()
	return out, func() []lobby.EventKind {
		mu.Lock()
		defer mu.Unlock()
		return append([]lobby.EventKind(nil), kinds...)
	}
}

func waitWatch(ch <-chan watchResult) watchResult {
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		So("timed out waiting for watch", ShouldBeEmpty)
		return watchResult{}
	}
}

// waitKinds polls until seen reports n events.
func waitKinds(seen func() []lobby.EventKind, n int) {
	deadline := time.Now().Add(2 * time.Second)
	for len(seen()) < n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatch(t *testing.T) {
	Convey("Given Bob watching Ann's room", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		defer store.Close()
		c := lobby.NewCoordinator(store)
		code, _ := c.CreateRoom(ctx, "Ann", 7)
		So(c.JoinRoom(ctx, code, "Bob", 4), ShouldBeNil)

		done, seen := watchAsync(ctx, c, code, "Bob")
		waitKinds(seen, 1)

		Convey("When the host starts the game", func() {
			So(c.StartGame(ctx, code), ShouldBeNil)
			res := waitWatch(done)

			Convey("Then Bob sees the start with locally computed teams", func() {
				So(res.err, ShouldBeNil)
				So(res.ev.Kind, ShouldEqual, lobby.EventStarted)
				So(res.ev.Teams, ShouldNotBeNil)
				So(res.ev.Teams.Diff, ShouldEqual, 3)
				So(seen(), ShouldResemble, []lobby.EventKind{lobby.EventUpdated, lobby.EventStarted})
			})
		})

		Convey("When the host kicks Bob", func() {
			So(c.KickPlayer(ctx, code, "Ann", "Bob"), ShouldBeNil)
			res := waitWatch(done)

			Convey("Then Bob sees his removal", func() {
				So(res.err, ShouldBeNil)
				So(res.ev.Kind, ShouldEqual, lobby.EventRemoved)
				So(res.ev.Room.Players, ShouldHaveLength, 1)
			})
		})

		Convey("When another player joins", func() {
			So(c.JoinRoom(ctx, code, "Cy", 6), ShouldBeNil)
			waitKinds(seen, 2)

			Convey("Then Bob keeps watching", func() {
				So(seen(), ShouldResemble, []lobby.EventKind{lobby.EventUpdated, lobby.EventUpdated})
				select {
				case <-done:
					So("watch ended early", ShouldBeEmpty)
				default:
				}
				So(c.RemovePlayer(ctx, code, "Bob"), ShouldBeNil)
				So(waitWatch(done).ev.Kind, ShouldEqual, lobby.EventRemoved)
			})
		})
	})

	Convey("Given a watch on a room that disappears", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		defer store.Close()
		c := lobby.NewCoordinator(store)
		code, _ := c.CreateRoom(ctx, "Ann", 7)

		Convey("Watching an unknown room ends at once as closed", func() {
			done, _ := watchAsync(ctx, c, "NONE", "Ann")
			res := waitWatch(done)
			So(res.err, ShouldBeNil)
			So(res.ev.Kind, ShouldEqual, lobby.EventClosed)
		})

		Convey("Cancelling the context ends the watch", func() {
			cctx, cancel := context.WithCancel(ctx)
			done, seen := watchAsync(cctx, c, code, "Ann")
			waitKinds(seen, 1)
			cancel()
			res := waitWatch(done)
			So(errors.Is(res.err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestClassify(t *testing.T) {
	room := model.NewRoom("AB12", "Ann", 7)
	room.Players = append(room.Players, model.Participant{Name: "Bob", Score: 4})

	cases := []struct {
		name string
		room *model.Room
		me   string
		want lobby.EventKind
	}{
		{"deleted", nil, "Ann", lobby.EventClosed},
		{"present", room, "Bob", lobby.EventUpdated},
		{"absent", room, "Cy", lobby.EventRemoved},
	}
	for _, tc := range cases {
		if got := lobby.Classify(tc.room, tc.me).Kind; got != tc.want {
			t.Errorf("%s: Classify = %s, want %s", tc.name, got, tc.want)
		}
	}

	started := room.Clone()
	started.Status = model.StatusStarted
	ev := lobby.Classify(started, "Ann")
	if ev.Kind != lobby.EventStarted || ev.Teams == nil || ev.Teams.ScoreA != 7 {
		t.Fatalf("started room classified as %+v", ev)
	}
	if !ev.Kind.Terminal() || lobby.EventUpdated.Terminal() {
		t.Fatal("terminal kinds misreported")
	}
}
