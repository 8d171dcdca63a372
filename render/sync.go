package render

import (
	"time"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/gpu"
)

// FrameSync holds the synchronization objects of the single frame in flight.
//
// The fence is signaled once the GPU has finished the last submitted frame.
// PresentSemaphore is signaled by image acquisition and waited on by the
// submission. RenderSemaphore is signaled by the submission and waited on by
// presentation.
type FrameSync struct {
	Fence            vk.Fence
	PresentSemaphore vk.Semaphore
	RenderSemaphore  vk.Semaphore

	// Frame counts the completed cycles.
	Frame uint64
}

// newFrameSync creates the fence in the signaled state so the first cycle
// does not wait. Objects created before a failure are destroyed.
func newFrameSync(dev gpu.Device) (*FrameSync, error) {
	presentSemaphore, err := dev.CreateSemaphore()
	if err != nil {
		return nil, errors.Wrap(err, "present semaphore")
	}

	renderSemaphore, err := dev.CreateSemaphore()
	if err != nil {
		dev.DestroySemaphore(presentSemaphore)
		return nil, errors.Wrap(err, "render semaphore")
	}

	fence, err := dev.CreateFence(true)
	if err != nil {
		dev.DestroySemaphore(renderSemaphore)
		dev.DestroySemaphore(presentSemaphore)
		return nil, errors.Wrap(err, "frame fence")
	}

	return &FrameSync{
		Fence:            fence,
		PresentSemaphore: presentSemaphore,
		RenderSemaphore:  renderSemaphore,
	}, nil
}

// wait blocks until the previous frame has completed.
func (s *FrameSync) wait(dev gpu.Device, timeout time.Duration) error {
	if err := dev.WaitForFence(s.Fence, timeout); err != nil {
		return errors.Wrapf(err, "frame %d", s.Frame)
	}
	return nil
}

// rearm signals the fence again after a cycle which reset it but will not
// submit the frame. The empty submission consumes the present semaphore
// when the acquisition already signaled it.
func (s *FrameSync) rearm(dev gpu.Device, queue vk.Queue, acquired bool) error {
	var submits []vk.SubmitInfo
	if acquired {
		submits = []vk.SubmitInfo{{
			SType:              vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount: 1,
			PWaitSemaphores:    []vk.Semaphore{s.PresentSemaphore},
			PWaitDstStageMask:  colorOutputStages(1),
		}}
	}

	return errors.Wrap(dev.QueueSubmit(queue, submits, s.Fence), "re-arming frame fence")
}

func (s *FrameSync) destroy(dev gpu.Device) {
	dev.DestroySemaphore(s.PresentSemaphore)
	dev.DestroySemaphore(s.RenderSemaphore)
	dev.DestroyFence(s.Fence)
}
