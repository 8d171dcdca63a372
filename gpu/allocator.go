package gpu

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Allocation is a buffer together with the device memory bound to it.
type Allocation struct {
	Buffer vk.Buffer
	Memory vk.DeviceMemory
	Size   vk.DeviceSize
}

// Allocator hands out buffers backed by device memory.
type Allocator interface {
	// CreateBuffer creates a buffer of size bytes and binds it to memory with
	// the requested properties.
	CreateBuffer(
		size vk.DeviceSize,
		usage vk.BufferUsageFlags,
		properties vk.MemoryPropertyFlags,
	) (Allocation, error)

	// Map maps the whole allocation into host memory. The allocation must
	// have been created host visible.
	Map(a Allocation) (unsafe.Pointer, error)
	Unmap(a Allocation)

	// DestroyBuffer destroys the buffer and frees its memory.
	DestroyBuffer(a Allocation)
}

// MemoryAllocator implements Allocator with one device memory allocation per
// buffer.
type MemoryAllocator struct {
	device        vk.Device
	memProperties vk.PhysicalDeviceMemoryProperties

	// families lists the queue families buffers are shared between. With more
	// than one family buffers are created with concurrent sharing so no queue
	// ownership transfer is needed between the transfer and graphics queues.
	families []uint32
}

// NewMemoryAllocator returns an allocator for device. families are the queue
// families which will access the created buffers.
func NewMemoryAllocator(
	physicalDevice vk.PhysicalDevice,
	device vk.Device,
	families []uint32,
) *MemoryAllocator {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memProperties)
	memProperties.Deref()

	return &MemoryAllocator{
		device:        device,
		memProperties: memProperties,
		families:      families,
	}
}

func (m *MemoryAllocator) CreateBuffer(
	size vk.DeviceSize,
	usage vk.BufferUsageFlags,
	properties vk.MemoryPropertyFlags,
) (Allocation, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	if len(m.families) > 1 {
		bufferInfo.SharingMode = vk.SharingModeConcurrent
		bufferInfo.QueueFamilyIndexCount = uint32(len(m.families))
		bufferInfo.PQueueFamilyIndices = m.families
	}

	alloc := Allocation{Size: size}

	res := vk.CreateBuffer(m.device, &bufferInfo, nil, &alloc.Buffer)
	if err := Result(res); err != nil {
		return Allocation{}, errors.Wrap(err, "failed to create buffer")
	}

	var memRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(m.device, alloc.Buffer, &memRequirements)
	memRequirements.Deref()

	memory, err := m.AllocateMemory(memRequirements, properties)
	if err != nil {
		vk.DestroyBuffer(m.device, alloc.Buffer, nil)
		return Allocation{}, errors.Wrap(err, "buffer memory")
	}
	alloc.Memory = memory

	res = vk.BindBufferMemory(m.device, alloc.Buffer, alloc.Memory, 0)
	if err := Result(res); err != nil {
		m.DestroyBuffer(alloc)
		return Allocation{}, errors.Wrap(err, "failed to bind buffer memory")
	}

	return alloc, nil
}

// AllocateMemory allocates memory satisfying requirements from the first
// memory type with the requested properties. Images get their memory from
// here.
func (m *MemoryAllocator) AllocateMemory(
	requirements vk.MemoryRequirements,
	properties vk.MemoryPropertyFlags,
) (vk.DeviceMemory, error) {
	memTypeIndex, err := m.findMemoryType(requirements.MemoryTypeBits, properties)
	if err != nil {
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memTypeIndex,
	}

	var memory vk.DeviceMemory
	res := vk.AllocateMemory(m.device, &allocInfo, nil, &memory)
	if err := Result(res); err != nil {
		return nil, errors.Wrap(err, "failed to allocate memory")
	}
	return memory, nil
}

// FreeMemory frees memory returned by AllocateMemory.
func (m *MemoryAllocator) FreeMemory(memory vk.DeviceMemory) {
	vk.FreeMemory(m.device, memory, nil)
}

func (m *MemoryAllocator) Map(a Allocation) (unsafe.Pointer, error) {
	var pData unsafe.Pointer
	res := vk.MapMemory(m.device, a.Memory, 0, a.Size, 0, &pData)
	if err := Result(res); err != nil {
		return nil, errors.Wrap(err, "failed to map buffer memory")
	}
	return pData, nil
}

func (m *MemoryAllocator) Unmap(a Allocation) {
	vk.UnmapMemory(m.device, a.Memory)
}

func (m *MemoryAllocator) DestroyBuffer(a Allocation) {
	vk.DestroyBuffer(m.device, a.Buffer, nil)
	vk.FreeMemory(m.device, a.Memory, nil)
}

func (m *MemoryAllocator) findMemoryType(
	typeFilter uint32,
	properties vk.MemoryPropertyFlags,
) (uint32, error) {
	for i := uint32(0); i < m.memProperties.MemoryTypeCount; i++ {
		memType := m.memProperties.MemoryTypes[i]
		memType.Deref()

		if typeFilter&(1<<i) == 0 {
			continue
		}

		if memType.PropertyFlags&properties != properties {
			continue
		}

		return i, nil
	}

	return 0, errors.New("failed to find suitable memory type")
}
