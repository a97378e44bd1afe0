// internal/status/constants.go
package status

// Device Status Block layout constants.
// These values define the mirror layout and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per device.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the device health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the last error code (see Code* below).
const SlotLastErrorCode = 1

// SlotSecondsInError holds the duration (in seconds) the device has been in error.
const SlotSecondsInError = 2

// SlotCycles holds the low 16 bits of the completed cycle counter.
const SlotCycles = 3

// SlotFailures holds the low 16 bits of the failed cycle counter.
const SlotFailures = 4

// Slots 5-10 are reserved.
const SlotReservedStart = 5
const SlotReservedEnd = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// MaxSecondsInError is where seconds_in_error saturates. It never wraps.
const MaxSecondsInError = 65535

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a healthy device.
const HealthOK uint16 = 1

// HealthError represents a device error state.
const HealthError uint16 = 2

// HealthStale represents a device whose last good read is too old.
const HealthStale uint16 = 3

// HealthDisabled represents a configured device that is not polled.
const HealthDisabled uint16 = 4

// ---- ERROR CODES ----

const (
	CodeNone                   uint16 = 0
	CodeGeneric                uint16 = 1
	CodeDeviceNotFound         uint16 = 10
	CodeConnectFailed          uint16 = 11
	CodeReadTimeout            uint16 = 12
	CodeFrameTooShort          uint16 = 13
	CodeChecksumMismatch       uint16 = 14
	CodeInvalidFrameParameters uint16 = 15
	CodeNotConnected           uint16 = 16

	// CodeModbusExceptionBase + exception code for device exceptions.
	CodeModbusExceptionBase uint16 = 100
)
