package bd18378

// Register is a one-byte register address on the BD18378. The set below
// is closed: the controller only ever touches these addresses, and
// LookupRegister rejects anything else.
type Register uint8

const (
	// Per-channel calibration, one register per channel in channel order.
	RegCalibration00 Register = 0x48
	RegCalibration01 Register = 0x49
	RegCalibration02 Register = 0x4A
	RegCalibration03 Register = 0x4B
	RegCalibration04 Register = 0x4C
	RegCalibration05 Register = 0x4D
	RegCalibration06 Register = 0x4E
	RegCalibration07 Register = 0x4F
	RegCalibration08 Register = 0x50
	RegCalibration09 Register = 0x51
	RegCalibration10 Register = 0x52
	RegCalibration11 Register = 0x53

	// Channel enable groups, six channels each.
	RegChannelEnable00To05 Register = 0x56
	RegChannelEnable06To11 Register = 0x57

	RegStatusReset   Register = 0x6B
	RegSoftwareReset Register = 0x6C

	// Reserved registers, written only during the power-up handshake.
	RegReserved79 Register = 0x79
	RegReserved7A Register = 0x7A
	RegReserved7B Register = 0x7B
	RegReservedB5 Register = 0xB5
	RegReservedB6 Register = 0xB6
	RegReservedB7 Register = 0xB7
	RegReservedB8 Register = 0xB8
	RegReservedB9 Register = 0xB9
)

// LookupRegister maps a raw address byte back to its Register. A byte
// outside the closed register set returns ErrInvalidAddress; it is never
// treated as a new register.
func LookupRegister(b uint8) (Register, error) {
	r := Register(b)
	if r >= RegCalibration00 && r <= RegCalibration11 {
		return r, nil
	}
	switch r {
	case RegChannelEnable00To05, RegChannelEnable06To11,
		RegStatusReset, RegSoftwareReset,
		RegReserved79, RegReserved7A, RegReserved7B,
		RegReservedB5, RegReservedB6, RegReservedB7, RegReservedB8, RegReservedB9:
		return r, nil
	}
	return 0, ErrInvalidAddress
}

// calibrationRegister returns the calibration register for channel ch.
// The caller validates ch < ChannelCount.
func calibrationRegister(ch uint8) Register {
	return RegCalibration00 + Register(ch)
}

func (r Register) String() string {
	if r >= RegCalibration00 && r <= RegCalibration11 {
		return "calibration" + string([]byte{'0' + byte(r-RegCalibration00)/10, '0' + byte(r-RegCalibration00)%10})
	}
	switch r {
	case RegChannelEnable00To05:
		return "channel_enable_00_05"
	case RegChannelEnable06To11:
		return "channel_enable_06_11"
	case RegStatusReset:
		return "status_reset"
	case RegSoftwareReset:
		return "software_reset"
	case RegReserved79:
		return "reserved_79"
	case RegReserved7A:
		return "reserved_7a"
	case RegReserved7B:
		return "reserved_7b"
	case RegReservedB5:
		return "reserved_b5"
	case RegReservedB6:
		return "reserved_b6"
	case RegReservedB7:
		return "reserved_b7"
	case RegReservedB8:
		return "reserved_b8"
	case RegReservedB9:
		return "reserved_b9"
	}
	return "unknown"
}
