package module

// Register addresses shared by every module type. The first
// SharedStateSize bytes of a module's register file have this layout.
const (
	AddrSerialNumber  byte = 0 // 4 bytes
	AddrType          byte = 4
	AddrFirmware      byte = 5
	AddrHardware      byte = 6
	AddrRadioChannel  byte = 7
	AddrRadioID       byte = 8
	AddrBoothMode     byte = 9
	AddrName          byte = 10 // 20 bytes
	AddrResetCount    byte = 30
	AddrOnTime        byte = 32
	AddrButtonPress   byte = 34
	AddrVoltage3V3Err byte = 36
	AddrNRF24SPIErr   byte = 38

	SharedStateSize = 40
	NameLength      = 20
	SerialLength    = 4
)

// Dongle registers.
const (
	AddrDongleBLESPIErr  byte = 40
	AddrDongleBLECommErr byte = 42

	DongleStateSize = 44
)

// Joint registers. Each motor axis occupies a block of
// JointAxisStride bytes starting at AddrJointX or AddrJointY.
const (
	AddrJointChargeTime   byte = 40
	AddrJointHighLoadTime byte = 42
	AddrJointErrCounters  byte = 44 // 18 bytes

	AddrJointX byte = 62
	AddrJointY byte = 84

	JointAxisStride = 22

	AddrJointLEDR         byte = 106
	AddrJointLEDG         byte = 107
	AddrJointLEDB         byte = 108
	AddrJointBatteryLevel byte = 109
	AddrJointVCCLevel     byte = 111
	AddrJointCurrentFlow  byte = 113
	AddrJointCharging     byte = 115
	AddrJointStatus       byte = 116

	JointStateSize = 117
)

// Offsets within a joint axis block.
const (
	JointGoalPos      byte = 0
	JointMovingSpeed  byte = 2
	JointCurrentPos   byte = 4
	JointSpeed        byte = 6
	JointLoad         byte = 8
	JointTorqueLimit  byte = 10
	JointCWMargin     byte = 12
	JointCCWMargin    byte = 13
	JointCWSlope      byte = 14
	JointCCWSlope     byte = 15
	JointPunch        byte = 16
	JointTorqueEnable byte = 18
	JointMoving       byte = 19
	JointVoltage      byte = 20
	JointTemperature  byte = 21
)

// Face registers.
const (
	AddrFaceCommFail       byte = 40
	AddrFaceBattery        byte = 41
	AddrFaceStatus         byte = 43
	AddrFaceEmotionCurrent byte = 44
	AddrFaceEmotionGoal    byte = 45
	AddrFaceFocusCurrent   byte = 46 // X, Y, Z, 2 bytes each
	AddrFaceFocusGoal      byte = 52 // X, Y, Z, 2 bytes each
	AddrFaceOrientation    byte = 58
	AddrFaceCompass        byte = 59
	AddrFaceAcceleration   byte = 61 // X, Y, Z, 2 bytes each

	FaceStateSize = 67
)

// Spin registers. Motor A and B blocks are SpinMotorStride apart,
// color sensors are SpinSensorStride apart.
const (
	AddrSpinErrCounters byte = 40 // 22 bytes
	AddrSpinLEDR        byte = 62
	AddrSpinLEDG        byte = 63
	AddrSpinLEDB        byte = 64
	AddrSpinBattery     byte = 65
	AddrSpinVCC         byte = 67
	AddrSpinTorqueA     byte = 69
	AddrSpinTorqueB     byte = 70
	AddrSpinCharging    byte = 71
	AddrSpinStatus      byte = 72
	AddrSpinMotorA      byte = 73
	AddrSpinMotorB      byte = 85
	AddrSpinHeadlight   byte = 97
	AddrSpinSensor1     byte = 98
	AddrSpinIRWrite     byte = 116
	AddrSpinIRRead      byte = 117
	SpinMotorStride          = 12
	SpinSensorStride         = 6
	SpinStateSize            = 118
	SpinSensorCount          = 3
)

// Offsets within a spin motor block.
const (
	SpinGoalPos         byte = 0
	SpinGoalSpeed       byte = 2
	SpinGoalStopPos     byte = 4
	SpinCurrentSpeed    byte = 6
	SpinCurrentPos      byte = 8
	SpinAchievedStopPos byte = 10
	SpinResetEncoder    byte = 11
)

// Offsets within a spin color sensor block.
const (
	SpinSensorInit  byte = 0
	SpinSensorClear byte = 1
	SpinSensorRed   byte = 2
	SpinSensorGreen byte = 3
	SpinSensorBlue  byte = 4
	SpinSensorProx  byte = 5
)

// Status codes reported in the status byte of sync replies by
// joints and spins.
const (
	StatusBoot       = 0
	StatusReady      = 1
	StatusLoadError  = 2
	StatusDistError  = 3
	StatusLowBattery = 4
	StatusRunning    = 5
	StatusLocked     = 6
)

// Face status codes.
const (
	FaceStatusReady   = 0
	FaceStatusRunning = 1
)

// Radio commands placed in the third header byte.
const (
	CmdSync    byte = 252
	CmdRelease byte = 246
)

// MaxRadioPacket is the largest radio payload the dongle forwards.
const MaxRadioPacket = 30

// ReadFlag marks an address in a sync packet as a read request.
const ReadFlag byte = 0x80
