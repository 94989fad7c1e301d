package parse

// StatusType identifies which field the HDL-64E status value carries. The
// sensor cycles through the types, one per firing packet.
type StatusType byte

const (
	StatusHour    StatusType = 'H'
	StatusMinute  StatusType = 'M'
	StatusSecond  StatusType = 'S'
	StatusDay     StatusType = 'D'
	StatusMonth   StatusType = 'N'
	StatusYear    StatusType = 'Y'
	StatusGPS     StatusType = 'G'
	StatusTemp    StatusType = 'T'
	StatusVersion StatusType = 'V'
)

// Values carried with StatusGPS.
const (
	GPSStatusValid  byte = 'A'
	GPSStatusNoFix  byte = 'V'
	GPSStatusAbsent byte = 0
)

func (s StatusType) String() string {
	switch s {
	case StatusHour:
		return "hour"
	case StatusMinute:
		return "minute"
	case StatusSecond:
		return "second"
	case StatusDay:
		return "day"
	case StatusMonth:
		return "month"
	case StatusYear:
		return "year"
	case StatusGPS:
		return "gps"
	case StatusTemp:
		return "temperature"
	case StatusVersion:
		return "version"
	default:
		return "unknown"
	}
}
