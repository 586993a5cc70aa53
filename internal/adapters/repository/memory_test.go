package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/podium/internal/adapters/repository"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryBackend_Partitions(t *testing.T) {
	Convey("Given a memory backend", t, func() {
		ctx := context.Background()
		b := repository.NewMemoryBackend()
		defer b.Close()

		Convey("When ensuring the same partition twice", func() {
			err1 := b.EnsurePartition(ctx, repository.TableDailyPlayers, "20130301")
			_, _ = b.Insert(ctx, repository.Key{Table: repository.TableDailyPlayers, Partition: "20130301", UserID: "U1"}, repository.Row{Score: 5})
			err2 := b.EnsurePartition(ctx, repository.TableDailyPlayers, "20130301")

			Convey("Then both calls succeed and the partition keeps its rows", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				ok, err := b.PartitionExists(ctx, repository.TableDailyPlayers, "20130301")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				row, err := b.Get(ctx, repository.Key{Table: repository.TableDailyPlayers, Partition: "20130301", UserID: "U1"})
				So(err, ShouldBeNil)
				So(row.Score, ShouldEqual, 5)
			})
		})

		Convey("When asking for a partition that was never ensured", func() {
			ok, err := b.PartitionExists(ctx, repository.TableWeeklyPlayers, "20130224")

			Convey("Then it does not exist", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When writing into a partition that was never ensured", func() {
			_, err := b.Append(ctx, repository.TableDailyLog, "20130301", repository.Row{Score: 1})

			Convey("Then ErrPartitionMissing is returned", func() {
				So(errors.Is(err, repository.ErrPartitionMissing), ShouldBeTrue)
			})
		})
	})

	Convey("Given a memory backend without the weekly template", t, func() {
		b := repository.NewMemoryBackend(repository.WithoutTemplate(repository.TableWeeklyPlayers))

		Convey("When ensuring a weekly partition", func() {
			err := b.EnsurePartition(context.Background(), repository.TableWeeklyPlayers, "20130224")

			Convey("Then ErrTemplateMissing is returned", func() {
				So(errors.Is(err, repository.ErrTemplateMissing), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryBackend_Rows(t *testing.T) {
	Convey("Given the unpartitioned players table", t, func() {
		ctx := context.Background()
		b := repository.NewMemoryBackend()
		key := repository.Key{Table: repository.TablePlayers, UserID: "U1"}

		Convey("When the row is absent", func() {
			_, err := b.Get(ctx, key)

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When inserting the same key twice", func() {
			n, err := b.Insert(ctx, key, repository.Row{Score: 10, Body: []byte(`{}`)})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			_, err = b.Insert(ctx, key, repository.Row{Score: 20})

			Convey("Then the second insert reports ErrKeyExists", func() {
				So(errors.Is(err, repository.ErrKeyExists), ShouldBeTrue)
				row, _ := b.Get(ctx, key)
				So(row.Score, ShouldEqual, 10)
			})
		})

		Convey("When swapping with a stale expected score", func() {
			_, _ = b.Insert(ctx, key, repository.Row{Score: 10})
			n, err := b.CompareAndSwap(ctx, key, 7, repository.Row{Score: 30})

			Convey("Then nothing is written", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
				row, _ := b.Get(ctx, key)
				So(row.Score, ShouldEqual, 10)
			})
		})

		Convey("When swapping with the current score", func() {
			_, _ = b.Insert(ctx, key, repository.Row{Score: 10})
			n, err := b.CompareAndSwap(ctx, key, 10, repository.Row{Score: 30})

			Convey("Then the row is replaced", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				row, _ := b.Get(ctx, key)
				So(row.Score, ShouldEqual, 30)
			})
		})

		Convey("When the backend is closed", func() {
			So(b.Close(), ShouldBeNil)
			_, err := b.Get(ctx, key)

			Convey("Then calls fail with ErrClosed", func() {
				So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := b.Insert(cctx, key, repository.Row{Score: 1})

			Convey("Then the context error is returned", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryBackend_Scan(t *testing.T) {
	Convey("Given a daily log partition with appended rows", t, func() {
		ctx := context.Background()
		b := repository.NewMemoryBackend()
		So(b.EnsurePartition(ctx, repository.TableDailyLog, "20130301"), ShouldBeNil)
		for _, s := range []int64{100, 50, 120} {
			_, err := b.Append(ctx, repository.TableDailyLog, "20130301", repository.Row{Score: s})
			So(err, ShouldBeNil)
		}

		Convey("When scanning the partition", func() {
			var scores []int64
			err := b.Scan(ctx, repository.TableDailyLog, "20130301", func(_ string, row repository.Row) error {
				scores = append(scores, row.Score)
				return nil
			})

			Convey("Then rows come back in append order", func() {
				So(err, ShouldBeNil)
				So(scores, ShouldResemble, []int64{100, 50, 120})
			})
		})
	})

	Convey("Given a keyed partition", t, func() {
		ctx := context.Background()
		b := repository.NewMemoryBackend()
		So(b.EnsurePartition(ctx, repository.TableDailyPlayers, "20130301"), ShouldBeNil)
		for _, u := range []string{"c", "a", "b"} {
			_, _ = b.Insert(ctx, repository.Key{Table: repository.TableDailyPlayers, Partition: "20130301", UserID: u}, repository.Row{Score: 1})
		}

		Convey("When scanning", func() {
			var users []string
			_ = b.Scan(ctx, repository.TableDailyPlayers, "20130301", func(u string, _ repository.Row) error {
				users = append(users, u)
				return nil
			})

			Convey("Then rows come back in user order", func() {
				So(users, ShouldResemble, []string{"a", "b", "c"})
			})
		})
	})
}

func TestMemoryBackend_ConcurrentCompareAndSwap(t *testing.T) {
	Convey("Given many writers racing on one key", t, func() {
		ctx := context.Background()
		b := repository.NewMemoryBackend()
		key := repository.Key{Table: repository.TablePlayers, UserID: "U1"}
		_, _ = b.Insert(ctx, key, repository.Row{Score: 0})

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				n, err := b.CompareAndSwap(ctx, key, 0, repository.Row{Score: int64(i + 1), Body: []byte(fmt.Sprint(i))})
				if err == nil && n == 1 {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one swap wins", func() {
			So(wins, ShouldEqual, 1)
		})
	})
}
