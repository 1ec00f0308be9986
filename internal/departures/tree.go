package departures

import "sort"

// Tree groups events route → direction → stop → headsign. Every level keeps
// its children in first-seen order until Sort is applied.
type Tree struct {
	Routes []*RouteGroup `json:"routes"`

	index map[string]*RouteGroup
}

type RouteGroup struct {
	RouteID    string            `json:"routeId"`
	BusNumber  string            `json:"busNumber"`
	Directions []*DirectionGroup `json:"directions"`

	index map[string]*DirectionGroup
}

type DirectionGroup struct {
	DirectionID string       `json:"directionId"`
	Stops       []*StopGroup `json:"stops"`

	index map[string]*StopGroup
}

type StopGroup struct {
	StopID         string            `json:"stopId"`
	StopName       string            `json:"stopName"`
	DistanceMeters *float64          `json:"distanceMeters,omitempty"`
	Headsigns      []*HeadsignBucket `json:"headsigns"`

	index map[string]*HeadsignBucket
}

type HeadsignBucket struct {
	Headsign string  `json:"headsign"`
	Events   []Event `json:"events"`
}

func NewTree() *Tree {
	return &Tree{index: map[string]*RouteGroup{}}
}

// Insert appends e to the leaf for its key tuple, creating any missing
// groups at the end of their parent.
func (t *Tree) Insert(e Event) {
	rg, ok := t.index[e.RouteID]
	if !ok {
		rg = &RouteGroup{RouteID: e.RouteID, BusNumber: e.BusNumber, index: map[string]*DirectionGroup{}}
		t.index[e.RouteID] = rg
		t.Routes = append(t.Routes, rg)
	}

	dg, ok := rg.index[e.DirectionID]
	if !ok {
		dg = &DirectionGroup{DirectionID: e.DirectionID, index: map[string]*StopGroup{}}
		rg.index[e.DirectionID] = dg
		rg.Directions = append(rg.Directions, dg)
	}

	sg, ok := dg.index[e.StopID]
	if !ok {
		sg = &StopGroup{StopID: e.StopID, StopName: e.StopName, DistanceMeters: e.DistanceMeters, index: map[string]*HeadsignBucket{}}
		dg.index[e.StopID] = sg
		dg.Stops = append(dg.Stops, sg)
	}

	hb, ok := sg.index[e.Headsign]
	if !ok {
		hb = &HeadsignBucket{Headsign: e.Headsign}
		sg.index[e.Headsign] = hb
		sg.Headsigns = append(sg.Headsigns, hb)
	}
	hb.Events = append(hb.Events, e)
}

// Sort orders directions within each route by the distance of their first
// event, then routes by the distance and arrival of their first event.
// Both sorts are stable and a missing distance counts as zero.
func (t *Tree) Sort() {
	for _, rg := range t.Routes {
		sort.SliceStable(rg.Directions, func(i, j int) bool {
			return rg.Directions[i].first().distance() < rg.Directions[j].first().distance()
		})
	}
	sort.SliceStable(t.Routes, func(i, j int) bool {
		a, b := t.Routes[i].first(), t.Routes[j].first()
		if a.distance() != b.distance() {
			return a.distance() < b.distance()
		}
		return a.ArrivalAt.Before(b.ArrivalAt)
	})
}

// Len counts the events held by the tree.
func (t *Tree) Len() int {
	n := 0
	for _, rg := range t.Routes {
		for _, dg := range rg.Directions {
			for _, sg := range dg.Stops {
				for _, hb := range sg.Headsigns {
					n += len(hb.Events)
				}
			}
		}
	}
	return n
}

// Flatten returns the tree as plain nested slices in the same order.
func (t *Tree) Flatten() [][][][][]Event {
	out := make([][][][][]Event, 0, len(t.Routes))
	for _, rg := range t.Routes {
		dirs := make([][][][]Event, 0, len(rg.Directions))
		for _, dg := range rg.Directions {
			stops := make([][][]Event, 0, len(dg.Stops))
			for _, sg := range dg.Stops {
				heads := make([][]Event, 0, len(sg.Headsigns))
				for _, hb := range sg.Headsigns {
					heads = append(heads, hb.Events)
				}
				stops = append(stops, heads)
			}
			dirs = append(dirs, stops)
		}
		out = append(out, dirs)
	}
	return out
}

func (rg *RouteGroup) first() Event {
	if len(rg.Directions) == 0 {
		return Event{}
	}
	return rg.Directions[0].first()
}

func (dg *DirectionGroup) first() Event {
	if len(dg.Stops) == 0 || len(dg.Stops[0].Headsigns) == 0 || len(dg.Stops[0].Headsigns[0].Events) == 0 {
		return Event{}
	}
	return dg.Stops[0].Headsigns[0].Events[0]
}
