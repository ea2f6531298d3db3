package project

import "time"

// Project is a playout rundown: an ordered list of events, each holding
// the items to fire on the studio's devices.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Events    []Event   `json:"events"`
}

// Event is one column of the project grid, played in Position order.
type Event struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Items    []Item `json:"items"`
}

// Item is one playable cell: which clip goes to which device channel and
// layer, and how.
type Item struct {
	ID         string `json:"id"`
	Position   int    `json:"position"`
	DeviceID   string `json:"deviceId"`
	Channel    int    `json:"channel"`
	Layer      int    `json:"layer"`
	Clip       string `json:"clip"`
	Loop       bool   `json:"loop"`
	Transition string `json:"transition,omitempty"`
}

// Summary is the listing form of a project, without the grid.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
