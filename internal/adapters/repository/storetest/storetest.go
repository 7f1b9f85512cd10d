// Package storetest holds behaviour checks shared by every repository.Store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/sync/errgroup"

	"github.com/Termdamp/MatchMixer/internal/adapters/repository"
	"github.com/Termdamp/MatchMixer/internal/domain/model"
)

const (
	recvTimeout     = 2 * time.Second
	racingWriters   = 16
	maxRaceAttempts = 1000
)

// Factory returns a fresh, empty store; Run closes it.
type Factory func(t *testing.T) repository.Store

// Run exercises the Store contract against stores made by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	Convey("Given an empty room store", t, func() {
		ctx := context.Background()
		store := newStore(t)
		Reset(func() { _ = store.Close() })

		Convey("Get on an unknown code reports ErrNotFound", func() {
			_, err := store.Get(ctx, "NONE")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a room is created", func() {
			created, err := store.Create(ctx, model.NewRoom("AB12", "Ann", 7))
			So(err, ShouldBeNil)

			Convey("Then it starts at version 1 and reads back equal", func() {
				So(created.Version, ShouldEqual, 1)
				got, err := store.Get(ctx, "AB12")
				So(err, ShouldBeNil)
				So(got, ShouldResemble, created)
				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})

			Convey("Then creating the same code again fails", func() {
				_, err := store.Create(ctx, model.NewRoom("AB12", "Bob", 3))
				So(errors.Is(err, repository.ErrAlreadyExists), ShouldBeTrue)
				got, _ := store.Get(ctx, "AB12")
				So(got.Host, ShouldEqual, "Ann")
			})

			Convey("Then a versioned update bumps the version", func() {
				players := append(created.Players, model.Participant{Name: "Bob", Score: 3})
				updated, err := store.Update(ctx, "AB12", repository.Patch{Players: players}, created.Version)
				So(err, ShouldBeNil)
				So(updated.Version, ShouldEqual, 2)
				So(updated.Players, ShouldHaveLength, 2)
				So(updated.Host, ShouldEqual, "Ann")

				Convey("And a write against the old version conflicts", func() {
					_, err := store.Update(ctx, "AB12", repository.Patch{Players: created.Players}, created.Version)
					So(errors.Is(err, repository.ErrVersionConflict), ShouldBeTrue)
					err = store.Delete(ctx, "AB12", created.Version)
					So(errors.Is(err, repository.ErrVersionConflict), ShouldBeTrue)
					got, _ := store.Get(ctx, "AB12")
					So(got.Players, ShouldHaveLength, 2)
				})
			})

			Convey("Then a partial update leaves other fields alone", func() {
				closed, started := false, model.StatusStarted
				updated, err := store.Update(ctx, "AB12", repository.Patch{IsOpen: &closed, Status: &started}, repository.AnyVersion)
				So(err, ShouldBeNil)
				So(updated.IsOpen, ShouldBeFalse)
				So(updated.Status, ShouldEqual, model.StatusStarted)
				So(updated.Players, ShouldResemble, created.Players)
			})

			Convey("Then Set overwrites and continues the version sequence", func() {
				doc := model.NewRoom("AB12", "Zed", 1)
				set, err := store.Set(ctx, doc)
				So(err, ShouldBeNil)
				So(set.Version, ShouldEqual, 2)
				So(set.Host, ShouldEqual, "Zed")
			})

			Convey("Then Delete removes it", func() {
				So(store.Delete(ctx, "AB12", created.Version), ShouldBeNil)
				_, err := store.Get(ctx, "AB12")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(store.Delete(ctx, "AB12", repository.AnyVersion), repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("Update on an unknown code reports ErrNotFound", func() {
			_, err := store.Update(ctx, "NONE", repository.Patch{}, repository.AnyVersion)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Set on an unknown code creates it at version 1", func() {
			set, err := store.Set(ctx, model.NewRoom("CD34", "Ann", 4))
			So(err, ShouldBeNil)
			So(set.Version, ShouldEqual, 1)
		})

		Convey("When subscribing to a room", func() {
			_, err := store.Create(ctx, model.NewRoom("AB12", "Ann", 7))
			So(err, ShouldBeNil)

			ch := make(chan *model.Room, 16)
			cancel, err := store.Subscribe(ctx, "AB12", func(r *model.Room) { ch <- r })
			So(err, ShouldBeNil)
			Reset(cancel)

			Convey("Then the current document arrives first", func() {
				So(recv(ch).Version, ShouldEqual, 1)
			})

			Convey("Then writes arrive in version order and deletion as nil", func() {
				So(recv(ch).Version, ShouldEqual, 1)
				closed := false
				_, err := store.Update(ctx, "AB12", repository.Patch{IsOpen: &closed}, 1)
				So(err, ShouldBeNil)
				So(store.Delete(ctx, "AB12", 2), ShouldBeNil)

				second := recv(ch)
				So(second, ShouldNotBeNil)
				So(second.Version, ShouldEqual, 2)
				So(second.IsOpen, ShouldBeFalse)
				So(recv(ch), ShouldBeNil)
			})

			Convey("Then nothing arrives after unsubscribing", func() {
				So(recv(ch).Version, ShouldEqual, 1)
				cancel()
				cancel()
				_, err := store.Update(ctx, "AB12", repository.Patch{}, repository.AnyVersion)
				So(err, ShouldBeNil)
				select {
				case <-ch:
					So("notification after unsubscribe", ShouldBeEmpty)
				case <-time.After(50 * time.Millisecond):
				}
			})
		})

		Convey("Subscribing to a missing room yields nil first", func() {
			ch := make(chan *model.Room, 1)
			cancel, err := store.Subscribe(ctx, "NONE", func(r *model.Room) { ch <- r })
			So(err, ShouldBeNil)
			defer cancel()
			So(recv(ch), ShouldBeNil)
		})

		Convey("When concurrent writers race version-guarded updates", func() {
			_, err := store.Create(ctx, model.NewRoom("RACE", "Host", 5))
			So(err, ShouldBeNil)

			var g errgroup.Group
			for i := range racingWriters {
				name := fmt.Sprintf("p%02d", i)
				g.Go(func() error { return appendPlayer(ctx, store, "RACE", name) })
			}
			err = g.Wait()

			Convey("Then no write is lost and none fails the store", func() {
				So(err, ShouldBeNil)
				got, err := store.Get(ctx, "RACE")
				So(err, ShouldBeNil)
				So(got.Players, ShouldHaveLength, racingWriters+1)
				So(got.Version, ShouldEqual, racingWriters+1)

				seen := make(map[string]bool, len(got.Players))
				for _, p := range got.Players {
					seen[p.Name] = true
				}
				for i := range racingWriters {
					So(seen[fmt.Sprintf("p%02d", i)], ShouldBeTrue)
				}
			})
		})
	})
}

// appendPlayer adds name with a read then a version-guarded write, rereading
// after every lost race. Any other error ends the attempt.
func appendPlayer(ctx context.Context, store repository.Store, code, name string) error {
	for range maxRaceAttempts {
		room, err := store.Get(ctx, code)
		if err != nil {
			return fmt.Errorf("get %s for %s: %w", code, name, err)
		}
		players := append(room.Players, model.Participant{Name: name, Score: 3})
		_, err = store.Update(ctx, code, repository.Patch{Players: players}, room.Version)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update %s for %s: %w", code, name, err)
		}
		return nil
	}
	return fmt.Errorf("%s: still conflicting after %d attempts", name, maxRaceAttempts)
}

// recv waits for one notification; a timeout fails the assertion with a sentinel room.
func recv(ch <-chan *model.Room) *model.Room {
	select {
	case r := <-ch:
		return r
	case <-time.After(recvTimeout):
		So("timed out waiting for notification", ShouldBeEmpty)
		return &model.Room{Version: -1}
	}
}
