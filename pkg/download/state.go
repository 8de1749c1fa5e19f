package download

type state int

const (
	stateStart state = iota
	stateNetworkConnect
	stateFilesizeGet
	stateRangeRequest
	stateDataGet
	stateNetworkReconnect
	stateComplete
)

func (s state) String() string {
	switch s {
	case stateStart:
		return "Start"
	case stateNetworkConnect:
		return "NetworkConnect"
	case stateFilesizeGet:
		return "FilesizeGet"
	case stateRangeRequest:
		return "RangeRequest"
	case stateDataGet:
		return "DataGet"
	case stateNetworkReconnect:
		return "NetworkReconnect"
	case stateComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// transitions lists every edge the state machine may take. RangeRequest goes
// straight to DataGet once the response headers are in.
var transitions = map[state][]state{
	stateStart:            {stateNetworkConnect},
	stateNetworkConnect:   {stateFilesizeGet, stateNetworkReconnect},
	stateFilesizeGet:      {stateRangeRequest, stateNetworkReconnect},
	stateRangeRequest:     {stateDataGet, stateNetworkReconnect, stateComplete},
	stateDataGet:          {stateDataGet, stateNetworkReconnect, stateComplete},
	stateNetworkReconnect: {stateNetworkConnect},
	stateComplete:         {},
}

func (s state) canTransitionTo(next state) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
