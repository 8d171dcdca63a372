package boilerplate

import (
	"fmt"
	"log"

	vk "github.com/vulkan-go/vulkan"

	"vulkan-renderer/queues"
)

func (c *Context) createInstance() error {
	if c.cfg.Debug && !c.checkValidationSupport() {
		return fmt.Errorf("validation layers requested but not available")
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   c.cfg.Title + "\x00",
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "No Engine\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion10,
	}

	glfwExtensions := c.window.GetRequiredInstanceExtensions()
	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(glfwExtensions)),
		PpEnabledExtensionNames: glfwExtensions,
	}

	if c.cfg.Debug {
		createInfo.EnabledLayerCount = uint32(len(c.validationLayers))
		createInfo.PpEnabledLayerNames = c.validationLayers
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return fmt.Errorf("failed to create Vulkan instance: %w", err)
	}

	c.instance = instance
	return nil
}

func (c *Context) pickPhysicalDevice() error {
	var deviceCount uint32
	err := vk.Error(vk.EnumeratePhysicalDevices(c.instance, &deviceCount, nil))
	if err != nil {
		return fmt.Errorf("failed to get the number of physical devices: %w", err)
	}
	if deviceCount == 0 {
		return fmt.Errorf("failed to find GPUs with Vulkan support")
	}

	pDevices := make([]vk.PhysicalDevice, deviceCount)
	err = vk.Error(vk.EnumeratePhysicalDevices(c.instance, &deviceCount, pDevices))
	if err != nil {
		return fmt.Errorf("failed to enumerate the physical devices: %w", err)
	}

	var (
		selectedDevice vk.PhysicalDevice
		score          uint32
	)

	for _, device := range pDevices {
		deviceScore := c.getDeviceScore(device)

		if deviceScore > score {
			selectedDevice = device
			score = deviceScore
		}
	}

	if selectedDevice == vk.PhysicalDevice(vk.NullHandle) {
		return fmt.Errorf("failed to find suitable physical devices")
	}

	c.physicalDevice = selectedDevice
	return nil
}

func (c *Context) createLogicalDevice() error {
	indices := c.findQueueFamilies(c.physicalDevice)
	if !indices.IsComplete() {
		return fmt.Errorf("physical device does not have all the queues required by the program")
	}
	c.families = indices

	queueCreateInfos := []vk.DeviceQueueCreateInfo{}

	for _, familyIndex := range indices.Unique() {
		queueCreateInfos = append(
			queueCreateInfos,
			vk.DeviceQueueCreateInfo{
				SType:            vk.StructureTypeDeviceQueueCreateInfo,
				QueueFamilyIndex: familyIndex,
				QueueCount:       1,
				PQueuePriorities: []float32{1.0},
			},
		)
	}

	createInfo := vk.DeviceCreateInfo{
		SType:            vk.StructureTypeDeviceCreateInfo,
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{}},

		PQueueCreateInfos:    queueCreateInfos,
		QueueCreateInfoCount: uint32(len(queueCreateInfos)),

		EnabledExtensionCount:   uint32(len(c.deviceExtensions)),
		PpEnabledExtensionNames: c.deviceExtensions,
	}

	if c.cfg.Debug {
		createInfo.PpEnabledLayerNames = c.validationLayers
		createInfo.EnabledLayerCount = uint32(len(c.validationLayers))
	}

	var device vk.Device
	err := vk.Error(vk.CreateDevice(c.physicalDevice, &createInfo, nil, &device))
	if err != nil {
		return fmt.Errorf("failed to create logical device: %w", err)
	}
	c.device = device

	c.queues = queues.Set{
		Graphics: c.deviceQueue(indices.Graphics.Get()),
		Present:  c.deviceQueue(indices.Present.Get()),
		Transfer: c.deviceQueue(indices.TransferFamily()),
	}

	return nil
}

func (c *Context) deviceQueue(family uint32) queues.Queue {
	var queue vk.Queue
	vk.GetDeviceQueue(c.device, family, 0, &queue)
	return queues.Queue{Handle: queue, Family: family}
}

// findQueueFamilies returns a FamilyIndices populated with the Vulkan queue
// families needed by the program. A family with transfer but without graphics
// support is recorded as the dedicated transfer family.
func (c *Context) findQueueFamilies(device vk.PhysicalDevice) queues.FamilyIndices {
	indices := queues.FamilyIndices{}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)

	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for i, family := range queueFamilies {
		family.Deref()

		graphics := family.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		transfer := family.QueueFlags&vk.QueueFlags(vk.QueueTransferBit) != 0

		if graphics && !indices.Graphics.HasValue() {
			indices.Graphics.Set(uint32(i))
		}

		if transfer && !graphics && !indices.Transfer.HasValue() {
			indices.Transfer.Set(uint32(i))
		}

		if indices.Present.HasValue() {
			continue
		}

		var hasPresent vk.Bool32
		err := vk.Error(
			vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), c.surface, &hasPresent),
		)
		if err != nil {
			log.Printf("error querying surface support for queue family %d: %s", i, err)
		} else if hasPresent.B() {
			indices.Present.Set(uint32(i))
		}
	}

	return indices
}

// getDeviceScore returns how suitable is this device for the current program.
// Bigger score means better. Zero means the device cannot be used.
func (c *Context) getDeviceScore(device vk.PhysicalDevice) uint32 {
	var (
		deviceScore uint32
		properties  vk.PhysicalDeviceProperties
	)

	vk.GetPhysicalDeviceProperties(device, &properties)
	properties.Deref()

	if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
		deviceScore += 1000
	} else {
		deviceScore++
	}

	if !c.isDeviceSuitable(device) {
		deviceScore = 0
	}

	if c.cfg.Debug {
		log.Printf(
			"Available device: %s (score: %d)",
			vk.ToString(properties.DeviceName[:]),
			deviceScore,
		)
	}

	return deviceScore
}

func (c *Context) isDeviceSuitable(device vk.PhysicalDevice) bool {
	indices := c.findQueueFamilies(device)
	extensionsSupported := c.checkDeviceExtensionSupport(device)

	swapChainAdequate := false
	if extensionsSupported {
		swapChainSupport, err := c.querySwapChainSupport(device)
		if err != nil {
			log.Printf("WARNING: %s", err)
			return false
		}
		swapChainAdequate = len(swapChainSupport.formats) > 0 &&
			len(swapChainSupport.presentModes) > 0
	}

	return indices.IsComplete() && extensionsSupported && swapChainAdequate
}

func (c *Context) checkDeviceExtensionSupport(device vk.PhysicalDevice) bool {
	var extensionsCount uint32
	res := vk.EnumerateDeviceExtensionProperties(device, "", &extensionsCount, nil)
	if err := vk.Error(res); err != nil {
		log.Printf("WARNING: enumerating device extension properties count: %s", err)
		return false
	}

	availableExtensions := make([]vk.ExtensionProperties, extensionsCount)
	res = vk.EnumerateDeviceExtensionProperties(device, "", &extensionsCount,
		availableExtensions)
	if err := vk.Error(res); err != nil {
		log.Printf("WARNING: getting device extension properties: %s", err)
		return false
	}

	requiredExtensions := make(map[string]struct{})
	for _, extensionName := range c.deviceExtensions {
		requiredExtensions[extensionName] = struct{}{}
	}

	for _, extension := range availableExtensions {
		extension.Deref()
		extensionName := vk.ToString(extension.ExtensionName[:])

		delete(requiredExtensions, extensionName+"\x00")
	}

	return len(requiredExtensions) == 0
}

func (c *Context) checkValidationSupport() bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	availableLayers := make([]vk.LayerProperties, count)

	if vk.EnumerateInstanceLayerProperties(&count, availableLayers) != vk.Success {
		return false
	}

	available := make(map[string]struct{}, count)
	for _, layer := range availableLayers {
		layer.Deref()
		available[vk.ToString(layer.LayerName[:])+"\x00"] = struct{}{}
	}

	for _, validationLayer := range c.validationLayers {
		if _, ok := available[validationLayer]; !ok {
			return false
		}
	}

	return true
}
