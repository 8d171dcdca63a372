package render

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/gpu/gputest"

	. "github.com/onsi/gomega"
)

func TestBuildTargets(t *testing.T) {
	h := newHarness(t)

	l, err := BuildLayout(h.f, h.sc.ColorFormat(), h.sc.DepthFormat())
	h.g.Expect(err).NotTo(HaveOccurred())

	targets, err := BuildTargets(h.f, l, h.sc.Views(), h.sc.DepthView(), h.sc.Extent())
	h.g.Expect(err).NotTo(HaveOccurred())
	h.g.Expect(targets).To(HaveLen(len(h.sc.Views())))

	for _, target := range targets {
		h.g.Expect(ptr(target.RenderPass)).To(Equal(ptr(l.RenderPass)))
		h.g.Expect(target.Extent).To(Equal(h.sc.Extent()))
	}
	h.g.Expect(h.f.Live()[gputest.KindFramebuffer]).To(Equal(3))

	targets.Destroy(h.f)
	l.Destroy(h.f)

	h.g.Expect(h.f.Live()).To(BeEmpty())
	h.expectClean()
}

func TestBuildTargetsPartialFailure(t *testing.T) {
	h := newHarness(t)

	l, err := BuildLayout(h.f, h.sc.ColorFormat(), h.sc.DepthFormat())
	h.g.Expect(err).NotTo(HaveOccurred())

	h.f.FailAfter(gputest.KindFramebuffer, 2)

	targets, err := BuildTargets(h.f, l, h.sc.Views(), h.sc.DepthView(), h.sc.Extent())
	h.g.Expect(err).To(MatchError(ContainSubstring("target 2")))
	h.g.Expect(KindOf(err)).To(Equal(KindDevice))
	h.g.Expect(targets).To(BeNil())

	h.g.Expect(h.f.Created(gputest.KindFramebuffer)).To(Equal(2))
	h.g.Expect(h.f.Live()[gputest.KindFramebuffer]).To(BeZero())

	l.Destroy(h.f)
	h.expectClean()
}

func TestBuildTargetsWithoutViews(t *testing.T) {
	h := newHarness(t)

	l, err := BuildLayout(h.f, h.sc.ColorFormat(), h.sc.DepthFormat())
	h.g.Expect(err).NotTo(HaveOccurred())

	_, err = BuildTargets(h.f, l, nil, h.sc.DepthView(), vk.Extent2D{Width: 1, Height: 1})
	h.g.Expect(err).To(HaveOccurred())
	h.g.Expect(KindOf(err)).To(Equal(KindDevice))

	l.Destroy(h.f)
}
