package gputest

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/gpu"
	"vulkan-renderer/queues"
)

// Swapchain is a fake presentation surface backed by a Fake. Images are
// handed out round robin and acquisition signals the semaphore right away.
// An acquired image is held by the application until it is presented. When
// every image is held acquisition times out.
type Swapchain struct {
	f *Fake

	views       []vk.ImageView
	depthView   vk.ImageView
	extent      vk.Extent2D
	colorFormat vk.Format
	depthFormat vk.Format
	next        uint32
	held        map[uint32]bool

	// OutOfDate makes AcquireNextImage fail with gpu.ErrOutOfDate.
	OutOfDate bool

	// Suboptimal is reported by every successful acquisition.
	Suboptimal bool

	// PresentOutOfDate makes Present fail with gpu.ErrOutOfDate.
	PresentOutOfDate bool

	// Acquired and Presented log the image indices.
	Acquired  []uint32
	Presented []uint32

	// AcquireTimeout is the timeout passed to the last AcquireNextImage.
	AcquireTimeout time.Duration

	Recreated int
}

// NewSwapchain returns a swapchain with the given number of images at
// 800x600.
func NewSwapchain(f *Fake, images int) *Swapchain {
	s := &Swapchain{
		f:           f,
		colorFormat: vk.FormatB8g8r8a8Srgb,
		depthFormat: vk.FormatD32Sfloat,
	}
	s.create(images, vk.Extent2D{Width: 800, Height: 600})
	return s
}

func (s *Swapchain) create(images int, extent vk.Extent2D) {
	s.views = make([]vk.ImageView, images)
	for i := range s.views {
		s.views[i] = s.f.ImageView()
	}
	s.depthView = s.f.ImageView()
	s.extent = extent
	s.next = 0
	s.held = make(map[uint32]bool)
}

// Recreate replaces every view with a new one, the way a swapchain
// recreation after a resize does, and clears the out of date flags.
func (s *Swapchain) Recreate(images int, extent vk.Extent2D) {
	for _, view := range s.views {
		s.f.ReleaseImageView(view)
	}
	s.f.ReleaseImageView(s.depthView)

	s.create(images, extent)
	s.OutOfDate = false
	s.PresentOutOfDate = false
	s.Suboptimal = false
	s.Recreated++
}

// SetDepthFormat changes the format reported for the depth image.
func (s *Swapchain) SetDepthFormat(format vk.Format) {
	s.depthFormat = format
}

func (s *Swapchain) Views() []vk.ImageView   { return s.views }
func (s *Swapchain) DepthView() vk.ImageView { return s.depthView }
func (s *Swapchain) Extent() vk.Extent2D     { return s.extent }
func (s *Swapchain) ColorFormat() vk.Format  { return s.colorFormat }
func (s *Swapchain) DepthFormat() vk.Format  { return s.depthFormat }

// Held returns the number of images acquired and not presented yet.
func (s *Swapchain) Held() int {
	return len(s.held)
}

func (s *Swapchain) AcquireNextImage(
	semaphore vk.Semaphore,
	timeout time.Duration,
) (uint32, bool, error) {
	s.f.event("acquire")
	s.AcquireTimeout = timeout

	if s.OutOfDate {
		return 0, false, errors.Wrap(gpu.ErrOutOfDate, "fake: acquire")
	}

	count := uint32(len(s.views))
	if len(s.held) >= len(s.views) {
		return 0, false, errors.Wrapf(gpu.ErrTimeout, "fake: acquire: all %d images held", count)
	}

	index := s.next
	for s.held[index] {
		index = (index + 1) % count
	}
	s.next = (index + 1) % count
	s.held[index] = true

	s.f.Signal(semaphore, "acquire")
	s.Acquired = append(s.Acquired, index)

	return index, s.Suboptimal, nil
}

func (s *Swapchain) Present(queue queues.Queue, imageIndex uint32, waitSemaphores []vk.Semaphore) error {
	s.f.event("present")

	s.f.lookup(unsafe.Pointer(queue.Handle), KindQueue, "present")
	if int(imageIndex) >= len(s.views) {
		s.f.violate("present: image %d of %d", imageIndex, len(s.views))
	}
	for _, semaphore := range waitSemaphores {
		s.f.Consume(unsafe.Pointer(semaphore), "present")
	}
	s.Presented = append(s.Presented, imageIndex)
	delete(s.held, imageIndex)

	if s.PresentOutOfDate {
		return errors.Wrap(gpu.ErrOutOfDate, "fake: present")
	}
	return nil
}
