package render

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/gpu"
	"vulkan-renderer/mesh"
	"vulkan-renderer/unsafer"
)

// Geometry is a vertex buffer on the GPU. The host copy of the vertices is not
// kept once the upload has finished.
type Geometry struct {
	Allocation  gpu.Allocation
	VertexCount uint32

	released bool
}

// Release frees the buffer and its memory. The caller must know that no
// submitted command buffer still references it. Releasing twice is a no-op.
func (g *Geometry) Release(alloc gpu.Allocator) {
	if g.released {
		return
	}
	g.released = true
	alloc.DestroyBuffer(g.Allocation)
}

// Uploader copies vertices into GPU buffers.
type Uploader struct {
	alloc    gpu.Allocator
	recorder *Recorder
	staged   bool
}

// NewUploader returns an uploader. With staged set the vertices are copied
// into device local memory through the recorder's transfer queue.
func NewUploader(alloc gpu.Allocator, recorder *Recorder, staged bool) *Uploader {
	return &Uploader{
		alloc:    alloc,
		recorder: recorder,
		staged:   staged,
	}
}

// Upload creates a vertex buffer holding vertices. Either the whole upload
// succeeds or nothing stays allocated.
func (u *Uploader) Upload(vertices []mesh.Vertex) (*Geometry, error) {
	if len(vertices) == 0 {
		return nil, newError(KindAllocator, "upload", errors.New("no vertices"))
	}

	data := unsafer.SliceToBytes(vertices)

	var (
		a   gpu.Allocation
		err error
	)
	if u.staged {
		a, err = u.uploadStaged(data)
	} else {
		a, err = u.uploadHostVisible(
			data,
			vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit),
		)
	}
	if err != nil {
		return nil, err
	}

	return &Geometry{
		Allocation:  a,
		VertexCount: uint32(len(vertices)),
	}, nil
}

// uploadHostVisible creates a host visible and coherent buffer and copies
// data into it. No flush is needed because of the coherency.
func (u *Uploader) uploadHostVisible(data []byte, usage vk.BufferUsageFlags) (gpu.Allocation, error) {
	a, err := u.alloc.CreateBuffer(
		vk.DeviceSize(len(data)),
		usage,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
	)
	if err != nil {
		return gpu.Allocation{}, newError(KindAllocator, "upload", err)
	}

	pData, err := u.alloc.Map(a)
	if err != nil {
		u.alloc.DestroyBuffer(a)
		return gpu.Allocation{}, newError(KindAllocator, "upload", err)
	}

	vk.Memcopy(pData, data)
	u.alloc.Unmap(a)

	return a, nil
}

func (u *Uploader) uploadStaged(data []byte) (gpu.Allocation, error) {
	staging, err := u.uploadHostVisible(
		data,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
	)
	if err != nil {
		return gpu.Allocation{}, err
	}
	defer u.alloc.DestroyBuffer(staging)

	a, err := u.alloc.CreateBuffer(
		staging.Size,
		vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)|
			vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
	)
	if err != nil {
		return gpu.Allocation{}, newError(KindAllocator, "upload", err)
	}

	if err := u.recorder.CopyBuffer(staging.Buffer, a.Buffer, staging.Size); err != nil {
		u.alloc.DestroyBuffer(a)
		return gpu.Allocation{}, newError(KindAllocator, "upload", err)
	}

	return a, nil
}
