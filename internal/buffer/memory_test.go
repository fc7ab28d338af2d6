package buffer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"tidemark.app/feed/internal/buffer"
	"tidemark.app/feed/internal/model"
)

var _ = Describe("MemoryBuffer", func() {
	var (
		ctx   context.Context
		buf   buffer.Buffer
		now   time.Time
		clock func() time.Time
	)

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	event := func(id string, at time.Time) model.RawEvent {
		return model.RawEvent{
			ID:          id,
			ActorID:     7,
			Verb:        model.VerbUploaded,
			ObjectType:  "file",
			ObjectID:    "obj-" + id,
			ContainerID: 42,
			OccurredAt:  at,
			Metadata:    map[string]string{model.MetaName: "doc-" + id},
		}
	}

	key := func(ev model.RawEvent) buffer.Key {
		return buffer.DeriveKey(ev, 24*time.Hour)
	}

	BeforeEach(func() {
		ctx = context.Background()
		now = start
		clock = func() time.Time { return now }
		buf = buffer.NewMemory(3, 2*time.Minute, buffer.WithClock(clock))
	})

	Describe("Append", func() {
		It("opens a new group for the first event", func() {
			ev := event("a", start)
			result, err := buf.Append(ctx, key(ev), ev)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(buffer.OutcomeOpenedNew))
			Expect(result.EventCount).To(Equal(1))
			Expect(result.FirstEventAt).To(Equal(start))
		})

		It("merges events sharing a key into one group", func() {
			first := event("a", start)
			second := event("b", start.Add(time.Minute))

			_, err := buf.Append(ctx, key(first), first)
			Expect(err).NotTo(HaveOccurred())

			result, err := buf.Append(ctx, key(second), second)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(buffer.OutcomeAppended))
			Expect(result.EventCount).To(Equal(2))
			Expect(result.FirstEventAt).To(Equal(start))
		})

		It("keeps events with different keys in separate groups", func() {
			upload := event("a", start)
			deletion := event("b", start)
			deletion.Verb = model.VerbDeleted

			r1, err := buf.Append(ctx, key(upload), upload)
			Expect(err).NotTo(HaveOccurred())
			r2, err := buf.Append(ctx, key(deletion), deletion)
			Expect(err).NotTo(HaveOccurred())

			Expect(r1.GroupKey).NotTo(Equal(r2.GroupKey))
			Expect(r2.Outcome).To(Equal(buffer.OutcomeOpenedNew))
		})

		It("caps the retained sample while counting every event", func() {
			var last buffer.AppendResult
			for i := 0; i < 5; i++ {
				ev := event(fmt.Sprintf("e%d", i), start.Add(time.Duration(i)*time.Second))
				var err error
				last, err = buf.Append(ctx, key(ev), ev)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(last.EventCount).To(Equal(5))

			group, err := buf.TryClaim(ctx, last.GroupKey)
			Expect(err).NotTo(HaveOccurred())
			Expect(group.EventCount).To(Equal(5))
			Expect(group.Sample).To(HaveLen(3))
			Expect(group.Sample[0].EventID).To(Equal("e0"))
			Expect(group.Sample[0].Name).To(Equal("doc-e0"))
		})

		It("routes appends to a successor generation once the head is claimed", func() {
			first := event("a", start)
			r1, err := buf.Append(ctx, key(first), first)
			Expect(err).NotTo(HaveOccurred())

			_, err = buf.TryClaim(ctx, r1.GroupKey)
			Expect(err).NotTo(HaveOccurred())

			late := event("b", start.Add(time.Second))
			r2, err := buf.Append(ctx, key(late), late)
			Expect(err).NotTo(HaveOccurred())
			Expect(r2.Outcome).To(Equal(buffer.OutcomeOpenedNew))
			Expect(r2.GroupKey).NotTo(Equal(r1.GroupKey))
			Expect(r2.EventCount).To(Equal(1))

			// The claimed snapshot never absorbed the late event
			claimed, err := buf.TryClaim(ctx, r2.GroupKey)
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed.EventCount).To(Equal(1))
			Expect(claimed.Sample[0].EventID).To(Equal("b"))
		})
	})

	Describe("PeekOpenGroups", func() {
		thresholds := buffer.CloseThresholds{
			IdleAfter: 15 * time.Minute,
			MaxAge:    2 * time.Hour,
			MaxEvents: 100,
		}

		It("ignores groups under every threshold", func() {
			ev := event("a", start)
			_, err := buf.Append(ctx, key(ev), ev)
			Expect(err).NotTo(HaveOccurred())

			now = start.Add(time.Minute)
			keys, err := buf.PeekOpenGroups(ctx, thresholds, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(BeEmpty())
		})

		It("returns groups idle past the threshold", func() {
			ev := event("a", start)
			r, err := buf.Append(ctx, key(ev), ev)
			Expect(err).NotTo(HaveOccurred())

			now = start.Add(16 * time.Minute)
			keys, err := buf.PeekOpenGroups(ctx, thresholds, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(ConsistOf(r.GroupKey))
		})

		It("returns groups older than the age cap even when recently active", func() {
			first := event("a", start)
			r, err := buf.Append(ctx, key(first), first)
			Expect(err).NotTo(HaveOccurred())

			// Keep the group busy right up to the age cap
			for i := 1; i <= 12; i++ {
				ev := event(fmt.Sprintf("e%d", i), start.Add(time.Duration(i)*10*time.Minute))
				_, err := buf.Append(ctx, key(ev), ev)
				Expect(err).NotTo(HaveOccurred())
			}

			now = start.Add(2*time.Hour + time.Minute)
			keys, err := buf.PeekOpenGroups(ctx, thresholds, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(ContainElement(r.GroupKey))
		})

		It("returns groups at the size cap immediately", func() {
			small := buffer.CloseThresholds{IdleAfter: time.Hour, MaxAge: time.Hour, MaxEvents: 3}
			var r buffer.AppendResult
			for i := 0; i < 3; i++ {
				ev := event(fmt.Sprintf("e%d", i), start)
				var err error
				r, err = buf.Append(ctx, key(ev), ev)
				Expect(err).NotTo(HaveOccurred())
			}

			keys, err := buf.PeekOpenGroups(ctx, small, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(ConsistOf(r.GroupKey))
		})

		It("excludes claimed groups", func() {
			ev := event("a", start)
			r, err := buf.Append(ctx, key(ev), ev)
			Expect(err).NotTo(HaveOccurred())

			_, err = buf.TryClaim(ctx, r.GroupKey)
			Expect(err).NotTo(HaveOccurred())

			now = start.Add(time.Hour)
			keys, err := buf.PeekOpenGroups(ctx, thresholds, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(BeEmpty())
		})
	})

	Describe("TryClaim", func() {
		It("admits exactly one of many racing claimants", func() {
			ev := event("a", start)
			r, err := buf.Append(ctx, key(ev), ev)
			Expect(err).NotTo(HaveOccurred())

			const racers = 16
			var (
				wg     sync.WaitGroup
				mu     sync.Mutex
				wins   int
				losses int
			)
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := buf.TryClaim(ctx, r.GroupKey)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						wins++
					case errors.Is(err, buffer.ErrGroupClaimed):
						losses++
					default:
						Fail("unexpected claim error: " + err.Error())
					}
				}()
			}
			wg.Wait()

			Expect(wins).To(Equal(1))
			Expect(losses).To(Equal(racers - 1))
		})

		It("returns ErrGroupNotFound for finalized groups", func() {
			ev := event("a", start)
			r, err := buf.Append(ctx, key(ev), ev)
			Expect(err).NotTo(HaveOccurred())

			_, err = buf.TryClaim(ctx, r.GroupKey)
			Expect(err).NotTo(HaveOccurred())
			Expect(buf.Release(ctx, r.GroupKey, true)).To(Succeed())

			_, err = buf.TryClaim(ctx, r.GroupKey)
			Expect(err).To(MatchError(buffer.ErrGroupNotFound))
		})

		It("allows re-claiming once the previous claim lapses", func() {
			ev := event("a", start)
			r, err := buf.Append(ctx, key(ev), ev)
			Expect(err).NotTo(HaveOccurred())

			_, err = buf.TryClaim(ctx, r.GroupKey)
			Expect(err).NotTo(HaveOccurred())

			_, err = buf.TryClaim(ctx, r.GroupKey)
			Expect(err).To(MatchError(buffer.ErrGroupClaimed))

			now = start.Add(3 * time.Minute)
			group, err := buf.TryClaim(ctx, r.GroupKey)
			Expect(err).NotTo(HaveOccurred())
			Expect(group.EventCount).To(Equal(1))
		})
	})

	Describe("ExpiredClaims", func() {
		It("surfaces groups whose claim TTL lapsed", func() {
			ev := event("a", start)
			r, err := buf.Append(ctx, key(ev), ev)
			Expect(err).NotTo(HaveOccurred())

			_, err = buf.TryClaim(ctx, r.GroupKey)
			Expect(err).NotTo(HaveOccurred())

			keys, err := buf.ExpiredClaims(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(BeEmpty())

			now = start.Add(3 * time.Minute)
			keys, err = buf.ExpiredClaims(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(ConsistOf(r.GroupKey))
		})
	})

	Describe("Release", func() {
		It("reverts an unfinalized group to open so a later sweep retries", func() {
			ev := event("a", start)
			r, err := buf.Append(ctx, key(ev), ev)
			Expect(err).NotTo(HaveOccurred())

			_, err = buf.TryClaim(ctx, r.GroupKey)
			Expect(err).NotTo(HaveOccurred())
			Expect(buf.Release(ctx, r.GroupKey, false)).To(Succeed())

			now = start.Add(16 * time.Minute)
			keys, err := buf.PeekOpenGroups(ctx, buffer.CloseThresholds{
				IdleAfter: 15 * time.Minute,
				MaxAge:    2 * time.Hour,
				MaxEvents: 100,
			}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(ConsistOf(r.GroupKey))
		})

		It("tolerates releasing a group that no longer exists", func() {
			Expect(buf.Release(ctx, "7:uploaded:file:42:0#0", true)).To(Succeed())
		})
	})
})
