package types

// Status bodies returned as text/plain by command-style endpoints.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Device is the serialised form of one device, as listed by GET /devices and
// as stored inside profile files.
type Device struct {
	Pins []int `json:"pins"`
	// State is nil while the device is uncontrolled.
	State  *string        `json:"state"`
	Name   string         `json:"name"`
	Params map[string]int `json:"params,omitempty"`
}

// DevicesResponse wraps a device list.
type DevicesResponse struct {
	Devices []Device `json:"devices"`
}

// DeviceType describes one entry of the device catalogue.
type DeviceType struct {
	Name         string `json:"name"`
	RequiredPins int    `json:"required_pins"`
	OnState      string `json:"on_state"`
	OffState     string `json:"off_state"`
	Stateless    bool   `json:"stateless,omitempty"`
}

// TypesResponse is the payload for GET /devices/types.
type TypesResponse struct {
	Types   []DeviceType `json:"types"`
	PinPool []int        `json:"pin_pool"`
}

// StepsResponse is the payload for GET /devices/steps/{pins}.
type StepsResponse struct {
	Steps int `json:"steps"`
}

// ProfilesResponse lists saved profiles. FavoriteProfile holds zero or one name.
type ProfilesResponse struct {
	Profiles        []string `json:"profiles"`
	FavoriteProfile []string `json:"favorite_profile"`
}

// ProfileRequest is the body of the /profiles and /profiles/favorite calls.
type ProfileRequest struct {
	Name     string `json:"NAME,omitempty"`
	Favorite string `json:"FAVORITE,omitempty"`
}

// NetworkInfo is the payload for GET /network.
type NetworkInfo struct {
	Hostname  string `json:"HOSTNAME"`
	IP        string `json:"IP"`
	MAC       string `json:"MAC"`
	Connected string `json:"CONNECTED"`
	Status    string `json:"STATUS"`
	Version   string `json:"VERSION"`
}

// ScanResult is one access point in GET /scan.
type ScanResult struct {
	SSID     string `json:"SSID"`
	BSSID    string `json:"BSSID"`
	Channel  string `json:"CHANNEL"`
	RSSI     string `json:"RSSI"`
	Security string `json:"SECURITY"`
	Hidden   string `json:"HIDDEN"`
}

// StreamMessage is the envelope pushed over /ws/stream.
type StreamMessage struct {
	Event string          `json:"event"`
	Data  DevicesResponse `json:"data"`
}

// ErrorResponse is the JSON body of every 4xx/5xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}
