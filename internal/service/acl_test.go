package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"tidemark.app/feed/internal/model"
	"tidemark.app/feed/internal/service"
	"tidemark.app/feed/internal/store"
)

var _ = Describe("AccessEvaluator", func() {
	var (
		ctx       context.Context
		checker   *mockCapabilityChecker
		evaluator *service.AccessEvaluator
	)

	BeforeEach(func() {
		ctx = context.Background()
		checker = &mockCapabilityChecker{}
		evaluator = service.NewAccessEvaluator(checker)
	})

	grant := func(capabilities ...service.Capability) {
		checker.hasCapabilityFn = func(_ context.Context, _, _ int64, capability service.Capability) (bool, error) {
			for _, granted := range capabilities {
				if granted == capability {
					return true, nil
				}
			}
			return false, nil
		}
	}

	Describe("FeedVisibility", func() {
		It("denies everything without feed read", func() {
			grant()
			visibility, err := evaluator.FeedVisibility(ctx, 1, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(visibility.CanRead).To(BeFalse())
		})

		It("grants reading without deletions by default", func() {
			grant(service.CapabilityFeedRead)
			visibility, err := evaluator.FeedVisibility(ctx, 1, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(visibility.CanRead).To(BeTrue())
			Expect(visibility.CanReadDeletions).To(BeFalse())
		})

		It("denies on resolution failure", func() {
			checker.hasCapabilityFn = func(_ context.Context, _, _ int64, _ service.Capability) (bool, error) {
				return true, errors.New("membership service unavailable")
			}
			visibility, err := evaluator.FeedVisibility(ctx, 1, 42)
			Expect(err).To(HaveOccurred())
			Expect(visibility.CanRead).To(BeFalse())
		})
	})

	Describe("Visibility.CanSee", func() {
		upload := &model.Activity{Verb: model.VerbUploaded, ContainerID: 42}
		deletion := &model.Activity{Verb: model.VerbDeleted, ContainerID: 42}

		It("hides everything from a viewer without read", func() {
			v := service.Visibility{}
			Expect(v.CanSee(upload)).To(BeFalse())
			Expect(v.CanSee(deletion)).To(BeFalse())
		})

		It("hides deletions from a plain reader", func() {
			v := service.Visibility{CanRead: true}
			Expect(v.CanSee(upload)).To(BeTrue())
			Expect(v.CanSee(deletion)).To(BeFalse())
		})

		It("shows deletions with the extra capability", func() {
			v := service.Visibility{CanRead: true, CanReadDeletions: true}
			Expect(v.CanSee(deletion)).To(BeTrue())
		})
	})
})

var _ = Describe("StoreCapabilityChecker", func() {
	var (
		ctx         context.Context
		memberships *mockMembershipStore
		checker     service.CapabilityChecker
	)

	BeforeEach(func() {
		ctx = context.Background()
		memberships = &mockMembershipStore{}
		checker = service.NewStoreCapabilityChecker(memberships)
	})

	It("matches a granted capability", func() {
		memberships.getCapabilitiesFn = func(_ context.Context, _, _ int64) ([]string, error) {
			return []string{"feed.read", "feed.read_deletions"}, nil
		}
		ok, err := checker.HasCapability(ctx, 1, 42, service.CapabilityFeedRead)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("denies an ungranted capability", func() {
		memberships.getCapabilitiesFn = func(_ context.Context, _, _ int64) ([]string, error) {
			return []string{"feed.read"}, nil
		}
		ok, err := checker.HasCapability(ctx, 1, 42, service.CapabilityFeedReadDeletions)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("treats a missing membership as denial, not error", func() {
		memberships.getCapabilitiesFn = func(_ context.Context, _, _ int64) ([]string, error) {
			return nil, store.ErrNotFound
		}
		ok, err := checker.HasCapability(ctx, 1, 42, service.CapabilityFeedRead)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("propagates store failures", func() {
		memberships.getCapabilitiesFn = func(_ context.Context, _, _ int64) ([]string, error) {
			return nil, errors.New("connection refused")
		}
		_, err := checker.HasCapability(ctx, 1, 42, service.CapabilityFeedRead)
		Expect(err).To(HaveOccurred())
	})
})
