package graph

// Result is returned by node callbacks and stored as port io status.
type Result int

// Results of node activation. The zero value is OK.
const (
	OK Result = iota
	NeedBuffer
	HaveBuffer
	Error
)

// Convert the result to a string.
func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case NeedBuffer:
		return "need-buffer"
	case HaveBuffer:
		return "have-buffer"
	case Error:
		return "error"
	}
	return "unknown"
}

// Direction of the port.
type Direction int

// Port directions.
const (
	Input Direction = iota
	Output
)

// Convert the direction to a string.
func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	}
	return "unknown"
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == Input {
		return Output
	}
	return Input
}
